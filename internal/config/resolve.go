package config

import (
	"fmt"
	"sort"

	"github.com/rcomino/gabriel-messenger/internal/publication"
)

// ReceiverSettings are the effective settings of one receiver instance after
// applying module defaults.
type ReceiverSettings struct {
	Wait          WaitSpec
	Colour        publication.Colour
	DownloadFiles bool
	LoggingLevel  string
}

// Resolve merges instance overrides over the module defaults.
func (m ReceiverModule) Resolve(key string) (ReceiverSettings, error) {
	inst, ok := m.Instances[key]
	if !ok {
		return ReceiverSettings{}, fmt.Errorf("instance %q not configured", key)
	}

	wait := m.WaitTime
	if inst.WaitTime != "" {
		wait = inst.WaitTime
	}
	ws, err := ParseWaitTime(string(wait))
	if err != nil {
		return ReceiverSettings{}, fmt.Errorf("wait_time: %w", err)
	}

	colour := m.Colour
	if inst.Colour != "" {
		colour = inst.Colour
	}
	c, err := publication.ParseColour(string(colour))
	if err != nil {
		return ReceiverSettings{}, fmt.Errorf("colour: %w", err)
	}

	out := ReceiverSettings{
		Wait:          ws,
		Colour:        c,
		DownloadFiles: m.DownloadFiles,
		LoggingLevel:  m.LoggingLevel,
	}
	if inst.DownloadFiles != nil {
		out.DownloadFiles = *inst.DownloadFiles
	}
	if inst.LoggingLevel != "" {
		out.LoggingLevel = inst.LoggingLevel
	}
	return out, nil
}

// SortedKeys returns map keys in a stable order so tasks start deterministically.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
