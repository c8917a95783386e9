package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// ErrChannelNotRegistered is returned by [Registry.CreateChannel] when no
// factory has been registered under the requested provider name.
var ErrChannelNotRegistered = errors.New("config: channel not registered")

// Registry maps provider names to model channel constructors. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]func(ProviderEntry) (llm.Channel, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]func(ProviderEntry) (llm.Channel, error)),
	}
}

// RegisterChannel registers a channel factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChannel(name string, factory func(ProviderEntry) (llm.Channel, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[name] = factory
}

// CreateChannel instantiates a channel using the factory registered under
// entry.Name. Returns [ErrChannelNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateChannel(entry ProviderEntry) (llm.Channel, error) {
	r.mu.RLock()
	factory, ok := r.channels[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns all registered channel names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}
