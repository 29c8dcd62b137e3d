package renderer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a backend.
type Factory func(opts Options) (Renderer, error)

var (
	// ErrAlreadyOpened is returned when a process tries to open a second
	// renderer. Embedded engines keep process-global state and cannot be
	// re-initialized, so the renderer is constructed once and reset in place.
	ErrAlreadyOpened = errors.New("renderer already opened in this process")
	// ErrUnknownBackend is returned by Open for unregistered names.
	ErrUnknownBackend = errors.New("unknown renderer backend")
)

var (
	registryMu sync.Mutex
	factories  = make(map[string]Factory)
	opened     bool
)

// Register makes a backend available under name. It panics on duplicates,
// like database/sql drivers.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("renderer: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("renderer: Register called twice for backend " + name)
	}
	factories[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	return sortedKeys()
}

// Open constructs the named backend. At most one successful Open is allowed
// per process; a failed construction does not consume it.
func Open(name string, opts Options) (Renderer, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, name, sortedKeys())
	}
	if opened {
		return nil, ErrAlreadyOpened
	}
	r, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open renderer backend %q: %w", name, err)
	}
	opened = true
	return r, nil
}

func sortedKeys() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
