package provider

import (
	"strings"
	"sync"

	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// Global factory table. Strategy packages register themselves here from
// init(), the same way database/sql drivers do, so a symbolic reference in
// configuration resolves without any reflection.
var (
	factoryMu sync.RWMutex
	factories = make(map[string]strategy.Factory)
)

// RegisterFactory makes a strategy factory available under the given name.
// Called from strategy package init(); panics on duplicate registration,
// which is a programming error.
func RegisterFactory(name string, f strategy.Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if f == nil {
		panic("provider: RegisterFactory with nil factory")
	}
	if _, dup := factories[name]; dup {
		panic("provider: RegisterFactory called twice for " + name)
	}
	factories[name] = f
}

// Factories returns the registered factory names, for diagnostics.
func Factories() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

func lookupFactory(name string) (strategy.Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// shortName reduces a qualified reference like
// "github.com/dropDatabas3/authbridge/internal/strategy/developer.Factory"
// to the conventional factory name "developer".
func shortName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.Index(ref, "."); i >= 0 {
		ref = ref[:i]
	}
	return strings.ToLower(ref)
}
