package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/dailyledger/internal/model"
)

// Registry хранит живые сессии и токены подтверждения почты с ограниченным сроком жизни.
type Registry interface {
	SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SaveConfirmation(ctx context.Context, token, userID string, ttl time.Duration) error
	TakeConfirmation(ctx context.Context, token string) (string, bool, error)
}

// RedisRegistry реализует Registry поверх Redis.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry создаёт реестр сессий на указанном клиенте Redis.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

type sessionValue struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Persistent bool   `json:"persistent"`
}

func (r *RedisRegistry) SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(sessionValue{UserID: s.UserID, Email: s.Email, Persistent: s.Persistent})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) SaveConfirmation(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, confirmationKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save confirmation: %w", err)
	}
	return nil
}

// TakeConfirmation атомарно читает и удаляет токен подтверждения.
func (r *RedisRegistry) TakeConfirmation(ctx context.Context, token string) (string, bool, error) {
	userID, err := r.client.GetDel(ctx, confirmationKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take confirmation: %w", err)
	}
	return userID, true, nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func confirmationKey(token string) string {
	return fmt.Sprintf("confirmation:%s", token)
}
