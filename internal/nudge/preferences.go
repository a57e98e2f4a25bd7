package nudge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Channel is a delivery channel for nudges.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

var knownChannels = map[Channel]bool{
	ChannelInApp: true,
	ChannelEmail: true,
	ChannelPush:  true,
}

// Preferences holds the per-user switches read by the gates.
// Quiet hours are hours of day in the user's timezone.
type Preferences struct {
	UserID           string           `json:"user_id"`
	AgentEnabled     bool             `json:"agent_enabled"`
	ProactiveEnabled bool             `json:"proactive_enabled"`
	QuietHoursStart  int              `json:"quiet_hours_start"`
	QuietHoursEnd    int              `json:"quiet_hours_end"`
	Channels         map[Channel]bool `json:"channels"`
	DailyLimit       int              `json:"daily_limit"`
	Timezone         string           `json:"timezone"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Defaults are the documented values applied when a user has no stored preferences.
type Defaults struct {
	AgentEnabled     bool            `mapstructure:"agent-enabled"`
	ProactiveEnabled bool            `mapstructure:"proactive-enabled"`
	DailyLimit       int             `mapstructure:"daily-limit"`
	QuietHoursStart  int             `mapstructure:"quiet-hours-start"`
	QuietHoursEnd    int             `mapstructure:"quiet-hours-end"`
	Timezone         string          `mapstructure:"timezone"`
	Channels         map[string]bool `mapstructure:"channels"`
}

// StandardDefaults mirrors a typical notification policy: three a day, quiet from 22 to 7.
func StandardDefaults() Defaults {
	return Defaults{
		AgentEnabled:     true,
		ProactiveEnabled: true,
		DailyLimit:       3,
		QuietHoursStart:  22,
		QuietHoursEnd:    7,
		Timezone:         "UTC",
		Channels: map[string]bool{
			string(ChannelInApp): true,
			string(ChannelEmail): false,
			string(ChannelPush):  false,
		},
	}
}

// DefaultPreferences creates preferences for a user from d.
func DefaultPreferences(userID string, d Defaults) *Preferences {
	channels := make(map[Channel]bool, len(knownChannels))
	for ch := range knownChannels {
		channels[ch] = ch == ChannelInApp
	}
	for name, on := range d.Channels {
		channels[Channel(strings.ToLower(name))] = on
	}

	tz := strings.TrimSpace(d.Timezone)
	if tz == "" {
		tz = "UTC"
	}

	return &Preferences{
		UserID:           userID,
		AgentEnabled:     d.AgentEnabled,
		ProactiveEnabled: d.ProactiveEnabled,
		QuietHoursStart:  d.QuietHoursStart,
		QuietHoursEnd:    d.QuietHoursEnd,
		Channels:         channels,
		DailyLimit:       d.DailyLimit,
		Timezone:         tz,
	}
}

// Location resolves the user's timezone.
func (p *Preferences) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidPreferences, p.Timezone, err)
	}
	return loc, nil
}

// ChannelEnabled reports whether delivery over ch is allowed.
func (p *Preferences) ChannelEnabled(ch Channel) bool {
	return p.Channels[ch]
}

// EnabledChannels lists enabled channels in lexical order.
func (p *Preferences) EnabledChannels() []Channel {
	res := make([]Channel, 0, len(p.Channels))
	for ch, on := range p.Channels {
		if on {
			res = append(res, ch)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Validate checks ranges and the timezone.
func (p *Preferences) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidPreferences)
	}
	if p.QuietHoursStart < 0 || p.QuietHoursStart > 23 {
		return fmt.Errorf("%w: quiet_hours_start must be within 0..23, got %d", ErrInvalidPreferences, p.QuietHoursStart)
	}
	if p.QuietHoursEnd < 0 || p.QuietHoursEnd > 23 {
		return fmt.Errorf("%w: quiet_hours_end must be within 0..23, got %d", ErrInvalidPreferences, p.QuietHoursEnd)
	}
	if p.DailyLimit < 0 {
		return fmt.Errorf("%w: daily_limit must not be negative, got %d", ErrInvalidPreferences, p.DailyLimit)
	}
	for ch := range p.Channels {
		if !knownChannels[ch] {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidPreferences, ch)
		}
	}
	_, err := p.Location()
	return err
}

// Clone returns a deep copy.
func (p *Preferences) Clone() *Preferences {
	c := *p
	c.Channels = make(map[Channel]bool, len(p.Channels))
	for k, v := range p.Channels {
		c.Channels[k] = v
	}
	return &c
}

// PreferencesPatch is a partial update. Nil fields are left untouched.
type PreferencesPatch struct {
	AgentEnabled     *bool           `mapstructure:"agent_enabled"`
	ProactiveEnabled *bool           `mapstructure:"proactive_enabled"`
	QuietHoursStart  *int            `mapstructure:"quiet_hours_start"`
	QuietHoursEnd    *int            `mapstructure:"quiet_hours_end"`
	DailyLimit       *int            `mapstructure:"daily_limit"`
	Timezone         *string         `mapstructure:"timezone"`
	Channels         map[string]bool `mapstructure:"channels"`
}

// DecodePatch converts loosely typed input (JSON bodies, CLI key=value pairs) into a patch.
// Strings such as "true" or "5" are accepted; unknown keys are rejected.
func DecodePatch(partial map[string]any) (*PreferencesPatch, error) {
	patch := &PreferencesPatch{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           patch,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(partial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
	}
	return patch, nil
}

// Apply returns a copy of p with the patch applied. The result is not validated.
func (p *Preferences) Apply(patch *PreferencesPatch) *Preferences {
	next := p.Clone()
	if patch == nil {
		return next
	}
	if patch.AgentEnabled != nil {
		next.AgentEnabled = *patch.AgentEnabled
	}
	if patch.ProactiveEnabled != nil {
		next.ProactiveEnabled = *patch.ProactiveEnabled
	}
	if patch.QuietHoursStart != nil {
		next.QuietHoursStart = *patch.QuietHoursStart
	}
	if patch.QuietHoursEnd != nil {
		next.QuietHoursEnd = *patch.QuietHoursEnd
	}
	if patch.DailyLimit != nil {
		next.DailyLimit = *patch.DailyLimit
	}
	if patch.Timezone != nil {
		next.Timezone = strings.TrimSpace(*patch.Timezone)
	}
	for name, on := range patch.Channels {
		next.Channels[Channel(strings.ToLower(strings.TrimSpace(name)))] = on
	}
	return next
}
