// Package modules maps configured module names to receiver and sender
// constructors.
package modules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

// ErrUnknownModule is returned for a configured module name with no constructor.
var ErrUnknownModule = errors.New("unknown module")

// Env carries everything a module instance may need from the application.
type Env struct {
	Module string
	Key    string
	Log    logx.Logger

	// Receivers only.
	Colour   publication.Colour
	Fetch    *fetch.Client
	Files    *fetch.Downloader
	Location *time.Location
}

// Source is the identity used by the identifier store: "<module>/<key>".
func (e Env) Source() string { return e.Module + "/" + e.Key }

type ReceiverFactory func(env Env, options json.RawMessage) (pipeline.Pollable, error)

type SenderFactory func(env Env, options json.RawMessage) (pipeline.Deliverable, error)

// Registry is safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	receivers map[string]ReceiverFactory
	senders   map[string]SenderFactory
}

func NewRegistry() *Registry {
	return &Registry{
		receivers: map[string]ReceiverFactory{},
		senders:   map[string]SenderFactory{},
	}
}

func (r *Registry) RegisterReceiver(name string, f ReceiverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[name] = f
}

func (r *Registry) RegisterSender(name string, f SenderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[name] = f
}

// NewReceiver constructs one receiver instance of module env.Module.
func (r *Registry) NewReceiver(env Env, options json.RawMessage) (pipeline.Pollable, error) {
	r.mu.RLock()
	f, ok := r.receivers[env.Module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: receiver %q", ErrUnknownModule, env.Module)
	}
	src, err := f(env, options)
	if err != nil {
		return nil, fmt.Errorf("receiver %s [%s]: %w", env.Module, env.Key, err)
	}
	return src, nil
}

// NewSender constructs one sender instance of module env.Module.
func (r *Registry) NewSender(env Env, options json.RawMessage) (pipeline.Deliverable, error) {
	r.mu.RLock()
	f, ok := r.senders[env.Module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sender %q", ErrUnknownModule, env.Module)
	}
	dst, err := f(env, options)
	if err != nil {
		return nil, fmt.Errorf("sender %s [%s]: %w", env.Module, env.Key, err)
	}
	return dst, nil
}

func (r *Registry) HasReceiver(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.receivers[name]
	return ok
}

func (r *Registry) HasSender(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.senders[name]
	return ok
}

func (r *Registry) ReceiverNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.receivers)
}

func (r *Registry) SenderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.senders)
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
