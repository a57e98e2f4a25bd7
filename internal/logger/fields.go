package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldUserID is the structured log field key for the evaluated user.
	FieldUserID = "user_id"
	// FieldRuleType is the structured log field key for a rule type.
	FieldRuleType = "rule_type"
	// FieldNudgeID is the structured log field key for a persisted nudge.
	FieldNudgeID = "nudge_id"
	// FieldState is the structured log field key for the orchestrator state.
	FieldState = "state"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// WithUser scopes the logger to one user's evaluation.
func WithUser(logger *zap.Logger, userID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldUserID, Value: userID})...)
}

// WithRule scopes the logger to one user and rule.
func WithRule(logger *zap.Logger, userID, ruleType string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldUserID, Value: userID},
		StringField{Key: FieldRuleType, Value: ruleType},
	)...)
}
