package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

var knownDrivers = map[string]bool{"": true, "memory": true, "mem": true, "file": true, "sqlite": true, "sqlite3": true, "redis": true}

// Validate checks everything that can be checked without the module registry:
// durations, levels, schedules, colours, and that every route references a
// configured sender instance with at least one channel.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := cfg.App.TickDuration()
	add(err)
	_, err = cfg.App.ShutdownLogEvery()
	add(err)
	_, err = cfg.App.Location()
	add(err)
	if env := strings.ToLower(strings.TrimSpace(cfg.App.Environment)); env != "" && env != "production" && env != "test" {
		add(fmt.Errorf("app.environment: must be production or test, got %q", cfg.App.Environment))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !knownDrivers[strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))] {
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err = cfg.Storage.BusyTimeoutDuration()
	add(err)
	_, err = cfg.Files.TimeoutDuration()
	add(err)

	for _, name := range SortedKeys(cfg.Senders) {
		mod := cfg.Senders[name]
		if !logx.ValidLevel(mod.LoggingLevel) {
			add(fmt.Errorf("senders.%s.logging_level: unknown level %q", name, mod.LoggingLevel))
		}
		if len(mod.Instances) == 0 {
			add(fmt.Errorf("senders.%s: no instances", name))
		}
	}

	for _, name := range SortedKeys(cfg.Receivers) {
		mod := cfg.Receivers[name]
		if len(mod.Instances) == 0 {
			add(fmt.Errorf("receivers.%s: no instances", name))
		}
		for _, key := range SortedKeys(mod.Instances) {
			path := fmt.Sprintf("receivers.%s.instances.%s", name, key)
			st, err := mod.Resolve(key)
			if err != nil {
				add(fmt.Errorf("%s: %w", path, err))
				continue
			}
			if !logx.ValidLevel(st.LoggingLevel) {
				add(fmt.Errorf("%s.logging_level: unknown level %q", path, st.LoggingLevel))
			}
			add(ValidateRoutes(path, mod.Instances[key].Send, cfg.Senders))
		}
	}
	return errors.Join(errs...)
}

// ErrInvalidRoute reports a routing table entry that does not resolve to a
// configured sender instance.
var ErrInvalidRoute = errors.New("invalid route")

// ValidateRoutes checks one receiver instance's routing table.
func ValidateRoutes(path string, send RoutingTable, senders map[string]SenderModule) error {
	if len(send) == 0 {
		return fmt.Errorf("%w: %s.send: no destinations", ErrInvalidRoute, path)
	}
	var errs []error
	for _, mod := range SortedKeys(send) {
		sm, ok := senders[mod]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s.send.%s: sender module not configured", ErrInvalidRoute, path, mod))
			continue
		}
		for _, key := range SortedKeys(send[mod]) {
			if _, ok := sm.Instances[key]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: sender instance not configured", ErrInvalidRoute, path, mod, key))
				continue
			}
			if len(send[mod][key]) == 0 {
				errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: no channels", ErrInvalidRoute, path, mod, key))
			}
			for _, ch := range send[mod][key] {
				if strings.TrimSpace(string(ch)) == "" {
					errs = append(errs, fmt.Errorf("%w: %s.send.%s.%s: empty channel", ErrInvalidRoute, path, mod, key))
				}
			}
		}
	}
	return errors.Join(errs...)
}
