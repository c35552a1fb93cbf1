package config

import (
	"reflect"

	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// Change summarizes a reload.
type Change struct {
	// Sections lists the top-level sections that differ.
	Sections []string
	// Fields are safe structured attrs for logging (never credentials).
	Fields []logx.Field
	// Restart reports whether a changed section is only read at startup.
	Restart bool
}

// Live reports whether only sections applied at runtime changed.
func (c Change) Live() bool { return len(c.Sections) > 0 && !c.Restart }

// SummarizeChange compares two configs. Only logging is applied live; every
// other section is read once when the tasks are built.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if oldCfg.Logging != newCfg.Logging {
		c.Sections = append(c.Sections, "logging")
		c.Fields = append(c.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.App != newCfg.App {
		c.Sections = append(c.Sections, "app")
		c.Restart = true
	}
	if oldCfg.Storage.Driver != newCfg.Storage.Driver ||
		oldCfg.Storage.Path != newCfg.Storage.Path ||
		oldCfg.Storage.BusyTimeout != newCfg.Storage.BusyTimeout ||
		oldCfg.Storage.Redis != newCfg.Storage.Redis {
		c.Sections = append(c.Sections, "storage")
		c.Fields = append(c.Fields, logx.String("storage.driver", newCfg.Storage.Driver))
		c.Restart = true
	}
	if oldCfg.Files != newCfg.Files {
		c.Sections = append(c.Sections, "files")
		c.Restart = true
	}
	if oldCfg.Metrics != newCfg.Metrics {
		c.Sections = append(c.Sections, "metrics")
		c.Fields = append(c.Fields, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
		c.Restart = true
	}
	if !reflect.DeepEqual(oldCfg.Senders, newCfg.Senders) {
		c.Sections = append(c.Sections, "senders")
		c.Fields = append(c.Fields, logx.Strings("senders", SortedKeys(newCfg.Senders)))
		c.Restart = true
	}
	if !reflect.DeepEqual(oldCfg.Receivers, newCfg.Receivers) {
		c.Sections = append(c.Sections, "receivers")
		c.Fields = append(c.Fields, logx.Strings("receivers", SortedKeys(newCfg.Receivers)))
		c.Restart = true
	}
	return c
}
