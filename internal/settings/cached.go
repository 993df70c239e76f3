package settings

import (
	"context"
	"errors"
	"time"

	"imagetolink/internal/logging"
	"imagetolink/internal/redis"
)

const (
	redisSettingsKey       = "settings:upload"
	redisInvalidateChannel = "settings:invalidate"
	redisSettingsTTL       = 30 * time.Minute
)

// CachedStore puts a redis cache in front of another store and tells every
// process sharing the redis instance when the settings change.
type CachedStore struct {
	inner  Store
	client *redis.Client
	log    *logging.Logger
}

func NewCachedStore(inner Store, client *redis.Client, logger *logging.Logger) *CachedStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{inner: inner, client: client, log: logger}
}

func (s *CachedStore) Load(ctx context.Context) ([]byte, error) {
	raw, err := s.client.Get(ctx, redisSettingsKey)
	if err == nil {
		return []byte(raw), nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warn("settings cache read failed", "error", err)
	}

	data, err := s.inner.Load(ctx)
	if err != nil || data == nil {
		return data, err
	}
	if err := s.client.Set(ctx, redisSettingsKey, data, redisSettingsTTL); err != nil {
		s.log.Warn("settings cache write failed", "error", err)
	}
	return data, nil
}

func (s *CachedStore) Save(ctx context.Context, data []byte) error {
	if err := s.inner.Save(ctx, data); err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisSettingsKey); err != nil {
		s.log.Warn("settings cache invalidate failed", "error", err)
	}
	if err := s.client.Publish(ctx, redisInvalidateChannel, []byte(redisSettingsKey)); err != nil {
		s.log.Warn("settings publish invalidation failed", "error", err)
	}
	return nil
}

// Watch calls onChange whenever any process saves new settings, until ctx
// ends.
func (s *CachedStore) Watch(ctx context.Context, onChange func()) error {
	return s.client.Subscribe(ctx, redisInvalidateChannel, func([]byte) {
		s.log.Debug("settings invalidated by peer")
		onChange()
	})
}
