package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/careerapi"
	"github.com/spigell/nudger/internal/engine"
	"github.com/spigell/nudger/internal/lock"
	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/rules"
	"github.com/spigell/nudger/internal/secrets"
	"github.com/spigell/nudger/internal/store"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	sourceStore = "store"
	sourceAPI   = "api"
)

// services is everything a command needs, built from the loaded config.
type services struct {
	config *Config
	logger *zap.Logger
	store  *store.Store
	engine *engine.Engine
	redis  *goredis.Client
}

func (s *services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

// mustServices builds services or exits. Commands run it first.
func mustServices(ctx context.Context) *services {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		panic(err)
	}

	s, err := newServices(ctx, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}

	return s
}

func newServices(ctx context.Context, log *zap.Logger) (*services, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	log.Debug("config loaded", zap.Any("config", config))

	st, err := store.Open(ctx, config.Database)
	if err != nil {
		return nil, err
	}

	s := &services{config: config, logger: log, store: st}

	provider, err := s.snapshotProvider()
	if err != nil {
		s.Close()
		return nil, err
	}

	locker, err := s.locker(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	registry, err := rules.NewRegistry(config.Rules, log.Named("rules"))
	if err != nil {
		s.Close()
		return nil, err
	}

	var timeout time.Duration
	if config.Snapshot != nil {
		timeout = config.Snapshot.Timeout
	}

	eng, err := engine.New(engine.Deps{
		Provider:        provider,
		Store:           st,
		Registry:        registry,
		Enrollment:      s.enrollment(),
		Locker:          locker,
		Logger:          log.Named("engine"),
		Defaults:        config.Defaults,
		SnapshotTimeout: timeout,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = eng

	return s, nil
}

func (s *services) snapshotProvider() (engine.SnapshotProvider, error) {
	source := sourceStore
	if s.config.Snapshot != nil && s.config.Snapshot.Source != "" {
		source = strings.ToLower(s.config.Snapshot.Source)
	}

	switch source {
	case sourceStore:
		return s.store, nil
	case sourceAPI:
		if s.config.API == nil {
			return nil, fmt.Errorf("snapshot source %q requires the api section", source)
		}

		token, err := secrets.Load(secrets.Source{
			Name:     "career api token",
			Env:      "NUDGER_API_TOKEN",
			File:     s.config.API.TokenFile,
			Optional: true,
		})
		if err != nil {
			return nil, err
		}

		client, err := careerapi.New(s.logger.Named("careerapi"), s.config.API.URL, token)
		if err != nil {
			return nil, err
		}
		if s.config.API.UserAgent != "" {
			client.UserAgent = s.config.API.UserAgent
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown snapshot source %q", source)
	}
}

// locker always serializes passes in process. With redis configured it also
// serializes them across processes sharing the database.
func (s *services) locker(ctx context.Context) (lock.Locker, error) {
	local := lock.NewKeyed()
	if s.config.Redis == nil || s.config.Redis.Addr == "" {
		return local, nil
	}

	password, err := secrets.Load(secrets.Source{
		Name:     "redis password",
		Env:      "NUDGER_REDIS_PASSWORD",
		File:     s.config.Redis.PasswordFile,
		Optional: true,
	})
	if err != nil {
		return nil, err
	}

	client, err := lock.Dial(ctx, s.config.Redis.Addr, password)
	if err != nil {
		return nil, err
	}
	s.redis = client

	remote, err := lock.NewRedis(client, lock.RedisOptions{TTL: s.config.Redis.LockTTL}, s.logger.Named("lock"))
	if err != nil {
		return nil, err
	}

	s.logger.Info("using redis for pass locks", zap.String("addr", s.config.Redis.Addr))

	return lock.Chain{local, remote}, nil
}

func (s *services) enrollment() engine.Enrollment {
	if s.config.Enrollment == nil || s.config.Enrollment.All {
		return engine.EnrollAll()
	}
	return engine.EnrollOnly(s.config.Enrollment.Users...)
}
