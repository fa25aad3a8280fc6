package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory builds an unconnected adapter. A nil logger discards output.
type Factory func(*slog.Logger) Adapter

// ErrNoType is returned when a connect descriptor names no adapter.
var ErrNoType = errors.New("connect.type is empty")

// factories maps a lower-cased connect.type to its constructor.
var factories = struct {
	sync.RWMutex
	byType map[string]Factory
}{byType: make(map[string]Factory)}

// Register makes an adapter available under the connect.type name. Adapter
// packages call it from init; a later registration replaces an earlier one.
func Register(name string, f Factory) {
	factories.Lock()
	defer factories.Unlock()
	factories.byType[strings.ToLower(name)] = f
}

// Get returns the factory for a connect.type, matched case-insensitively.
func Get(name string) (Factory, bool) {
	factories.RLock()
	defer factories.RUnlock()
	f, ok := factories.byType[strings.ToLower(name)]
	return f, ok
}

// NewAdapter builds the adapter a connect descriptor asks for. The adapter
// is not connected yet.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, ErrNoType
	}
	f, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return f(logger.With("adapter", strings.ToLower(cfg.Type))), nil
}

// ListAdapters returns the registered connect.type names in sorted order.
func ListAdapters() []string {
	factories.RLock()
	defer factories.RUnlock()
	names := make([]string, 0, len(factories.byType))
	for name := range factories.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a connect.type has a factory.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownAdapterError reports a connect.type no adapter is registered for.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("no adapter for connect.type %q (registered: %s)", e.Type, strings.Join(e.Available, ", "))
}
