// Package cache provides the session store backends.
package cache

import (
	"fmt"

	"github.com/opensource-finance/merlin/internal/domain"
)

// New creates a session store from configuration.
// Community tier: in-process LRU. Pro tier: Redis.
func New(cfg domain.SessionConfig) (domain.SessionStore, error) {
	switch cfg.Store {
	case "memory":
		return NewLRUStore(cfg.MaxOpen), nil
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Store)
	}
}
