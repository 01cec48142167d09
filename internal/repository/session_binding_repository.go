package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/infrastructure/redis"
	"github.com/yourorg/towdesk/internal/reliability/retry"
)

// Bindings live as long as a session token can: they are looked up on
// every request from a multi-tenant user, so they sit in Redis rather
// than Postgres.
const bindingTTL = 24 * time.Hour

// RedisSessionBindingRepository implements domain.SessionBindingRepository using Redis
type RedisSessionBindingRepository struct {
	redis  *redis.Client
	retry  *retry.Config
	logger *slog.Logger
}

// NewRedisSessionBindingRepository creates a new session binding repository
func NewRedisSessionBindingRepository(redisClient *redis.Client, logger *slog.Logger) *RedisSessionBindingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionBindingRepository{
		redis:  redisClient,
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
}

func bindingKey(sessionID string) string {
	return "binding:" + sessionID
}

// Put stores or replaces the tenant binding for a session
func (r *RedisSessionBindingRepository) Put(ctx context.Context, binding *domain.SessionBinding) error {
	data, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("failed to marshal binding: %w", err)
	}

	_, err = retry.Do(ctx, r.retry, r.logger, "binding.put", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.redis.Set(ctx, bindingKey(binding.SessionID), string(data), bindingTTL)
	})
	if err != nil {
		return fmt.Errorf("failed to store binding: %w", err)
	}

	r.logger.Debug("session binding stored",
		slog.String("session_id", binding.SessionID),
		slog.String("tenant_id", binding.TenantID),
	)
	return nil
}

// Get retrieves the binding for a session; nil when the session has
// never picked a tenant or the binding expired.
func (r *RedisSessionBindingRepository) Get(ctx context.Context, sessionID string) (*domain.SessionBinding, error) {
	data, err := r.redis.Get(ctx, bindingKey(sessionID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	var binding domain.SessionBinding
	if err := json.Unmarshal([]byte(data), &binding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binding: %w", err)
	}
	return &binding, nil
}
