package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the identifier store.
//
// Driver values:
//   - "memory": process-local, nothing survives a restart (dry runs, tests)
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//   - "redis": one set per source
//
// An empty driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to the source name to build the set key.
	Prefix string
}
