package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/storage"
)

const defaultRedisAddr = "127.0.0.1:6379"

// dataDir is the per-environment root for identifiers and downloads.
func dataDir(cfg *config.Config) string {
	env := strings.ToLower(strings.TrimSpace(cfg.App.Environment))
	if env == "" {
		env = "production"
	}
	return filepath.Join(".", "data", env)
}

func filesDir(cfg *config.Config) string {
	if dir := strings.TrimSpace(cfg.Files.Dir); dir != "" {
		return dir
	}
	return filepath.Join(dataDir(cfg), "files")
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "", "file":
		if path == "" {
			path = filepath.Join(dataDir(cfg), "identifiers")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = filepath.Join(dataDir(cfg), "identifiers.db")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "redis":
		rc := sc.Redis
		if strings.TrimSpace(rc.Addr) == "" {
			rc.Addr = defaultRedisAddr
		}
		if rc.Prefix == "" {
			rc.Prefix = "gabriel:" + filepath.Base(dataDir(cfg)) + ":ids:"
		}
		return storage.Config{Driver: "redis", Redis: storage.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
		}}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
