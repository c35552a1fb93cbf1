package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Config is the root of the configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	App       AppConfig                 `json:"app"`
	Logging   LoggingConfig             `json:"logging"`
	Storage   StorageConfig             `json:"storage"`
	Files     FilesConfig               `json:"files"`
	Metrics   MetricsConfig             `json:"metrics"`
	Senders   map[string]SenderModule   `json:"senders"`
	Receivers map[string]ReceiverModule `json:"receivers"`
}

// AppConfig controls the supervisor.
//
// Defaults:
//   - name: "GabrielMessenger"
//   - environment: "production"
//   - tick: "1s"
//   - shutdown_log_interval: "5s"
type AppConfig struct {
	Name                string `json:"name,omitempty"`
	Environment         string `json:"environment,omitempty"`
	Tick                string `json:"tick,omitempty"`
	ShutdownLogInterval string `json:"shutdown_log_interval,omitempty"`
	// Timezone is used by cron wait_time schedules. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the identifier store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/production/identifiers.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite only
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// FilesConfig controls where downloaded images and files are stored.
type FilesConfig struct {
	Dir       string `json:"dir,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// MetricsConfig controls the optional observability HTTP server.
//
// Security note: prefer binding to localhost; pprof is only mounted when Pprof is set.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
	Pprof   bool   `json:"pprof,omitempty"`
}

// SenderModule configures all instances of one sender module.
// Instance options are decoded by the module itself.
type SenderModule struct {
	LoggingLevel string                     `json:"logging_level,omitempty"`
	Instances    map[string]json.RawMessage `json:"instances"`
}

// ReceiverModule configures all instances of one receiver module. Module level
// settings are defaults for every instance.
type ReceiverModule struct {
	WaitTime      Scalar                      `json:"wait_time,omitempty"`
	Colour        Scalar                      `json:"colour,omitempty"`
	DownloadFiles bool                        `json:"download_files,omitempty"`
	LoggingLevel  string                      `json:"logging_level,omitempty"`
	Instances     map[string]ReceiverInstance `json:"instances"`
}

type ReceiverInstance struct {
	WaitTime      Scalar          `json:"wait_time,omitempty"`
	Colour        Scalar          `json:"colour,omitempty"`
	DownloadFiles *bool           `json:"download_files,omitempty"`
	LoggingLevel  string          `json:"logging_level,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	Send          RoutingTable    `json:"send"`
}

// RoutingTable maps sender module -> sender instance key -> channels.
// Channels may be written as numbers (e.g. Telegram chat ids).
type RoutingTable map[string]map[string][]Scalar

// Scalar is a config value written either as a string or as a number
// (e.g. wait_time: 600 or wait_time: "10m", colour: 16711680 or colour: "#ff0000").
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*s = Scalar(n.String())
	return nil
}

func (s Scalar) String() string { return string(s) }

// DecodeStrict decodes raw module options into out, rejecting unknown fields.
// Empty raw leaves out untouched.
func DecodeStrict(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
