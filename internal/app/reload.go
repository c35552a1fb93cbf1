package app

import (
	"context"
	"slices"
	"strings"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// LogConfig maps the logging section to the logx service config.
func LogConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

// reloadLoop applies committed config updates. Logging changes are applied
// live; anything else only takes effect after a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) error {
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			next = latest(sub, next)
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// latest coalesces bursts: it keeps only the newest config already queued.
func latest(sub chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	change := config.SummarizeChange(oldCfg, newCfg)
	if len(change.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Debug("config change summary", fields...)

	if a.logs != nil && slices.Contains(change.Sections, "logging") {
		a.logs.Apply(LogConfig(newCfg.Logging))
	}
	if change.Restart {
		a.log.Warn("config changed; restart required for changes to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}
