// Package session holds transient QA conversation state. Sessions live for
// the duration of a UI session and are not persisted beyond their TTL.
package session

import (
	"fmt"
	"time"

	"github.com/insightlab/analyst/config"
	"github.com/insightlab/analyst/models"
)

// Store manages conversation sessions.
type Store interface {
	// EnsureSession returns the session with the given id, creating a new
	// one (with a fresh id) when id is empty or unknown.
	EnsureSession(id string, ttl time.Duration) (Session, error)
	// GetSession returns an existing session or nil when absent.
	GetSession(id string) (Session, error)
}

// Session is one QA conversation.
type Session interface {
	ID() string
	Append(msg models.Message) error
	History() ([]models.Message, error)
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// NewStore builds a session store of the requested type.
func NewStore(storeType StoreType, redisCfg config.RedisConfig) (Store, error) {
	switch storeType {
	case InMemoryStore:
		return NewInMemoryStore(), nil
	case RedisStore:
		return NewRedisStore(redisCfg.Addr(), redisCfg.Pass, redisCfg.DB), nil
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", storeType)
	}
}
