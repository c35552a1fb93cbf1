package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// IdentifierStore is the durable seen-set used by receivers.
type IdentifierStore interface {
	LoadAll(ctx context.Context, source string) ([]string, error)
	// Create records id for source. Recording an id twice is not an error.
	Create(ctx context.Context, source, id string) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (IdentifierStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "memory", "mem":
		return NewMemory(), nil
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
