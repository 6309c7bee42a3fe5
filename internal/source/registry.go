// internal/source/registry.go
package source

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownAdapter = errors.New("unknown source adapter")

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func Get(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names zwraca posortowane nazwy zarejestrowanych adapterów.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New buduje adapter po nazwie.
func New(name string, d Deps) (Adapter, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownAdapter, name, Names())
	}
	return f(d)
}
