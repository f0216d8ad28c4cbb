package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/insightlab/analyst/models"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Redis-backed session store so conversations
// survive backend restarts within their TTL.
func NewRedisStore(addr, password string, db int) Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisStore{client: rdb}
}

func messagesKey(id string) string { return fmt.Sprintf("session:%s:messages", id) }
func metaKey(id string) string     { return fmt.Sprintf("session:%s:meta", id) }

func (s *redisStore) EnsureSession(id string, ttl time.Duration) (Session, error) {
	ctx := context.Background()
	if id != "" {
		exists, err := s.client.Exists(ctx, metaKey(id)).Result()
		if err == nil && exists == 1 {
			_ = s.client.Expire(ctx, metaKey(id), ttl).Err()
			_ = s.client.Expire(ctx, messagesKey(id), ttl).Err()
			return &redisSession{client: s.client, id: id, ttl: ttl}, nil
		}
	}
	newID := uuid.NewString()
	if err := s.client.Set(ctx, metaKey(newID), "{}", ttl).Err(); err != nil {
		return nil, err
	}
	return &redisSession{client: s.client, id: newID, ttl: ttl}, nil
}

func (s *redisStore) GetSession(id string) (Session, error) {
	ctx := context.Background()
	exists, err := s.client.Exists(ctx, metaKey(id)).Result()
	if err != nil || exists == 0 {
		return nil, nil
	}
	return &redisSession{client: s.client, id: id}, nil
}

type redisSession struct {
	client *redis.Client
	id     string
	ttl    time.Duration
}

func (s *redisSession) ID() string { return s.id }

func (s *redisSession) Append(msg models.Message) error {
	ctx := context.Background()
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, messagesKey(s.id), payload).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, messagesKey(s.id), s.ttl).Err()
	}
	return nil
}

func (s *redisSession) History() ([]models.Message, error) {
	ctx := context.Background()
	raw, err := s.client.LRange(ctx, messagesKey(s.id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
