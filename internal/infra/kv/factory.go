package kv

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dp1feed/internal/infra/config"
)

// RedisSettings configures the redis backend.
type RedisSettings struct {
	URL       string `yaml:"url" mapstructure:"url" validate:"required"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix" default:"dp1"`
}

// Backend is an opened set of namespaces plus the function releasing it.
type Backend struct {
	*Namespaces
	close func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open creates the namespaces described by cfg, wrapped with metrics.
func Open(ctx context.Context, cfg config.StorageConfig) (*Backend, error) {
	zlog.Debug().Msgf("opening storage backend: type=%s", cfg.Type)

	switch cfg.Type {
	case "memory", "":
		zlog.Warn().Msg("using in-memory storage, data is lost on restart")
		return &Backend{Namespaces: InstrumentNamespaces(NewMemoryNamespaces())}, nil

	case "redis":
		settings, err := decodeRedisSettings(cfg.Settings)
		if err != nil {
			return nil, err
		}
		opt, err := redis.ParseURL(settings.URL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid redis url")
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		zlog.Info().Msgf("connected to redis: addr=%s db=%d prefix=%s", opt.Addr, opt.DB, settings.KeyPrefix)
		return &Backend{
			Namespaces: InstrumentNamespaces(NewRedisNamespaces(rdb, settings.KeyPrefix)),
			close:      rdb.Close,
		}, nil

	default:
		return nil, errors.Newf("unsupported storage type: %s", cfg.Type)
	}
}

func decodeRedisSettings(settings map[string]any) (*RedisSettings, error) {
	var s RedisSettings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode redis settings")
	}
	if err := defaults.Set(&s); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "redis settings validation failed")
	}
	return &s, nil
}
