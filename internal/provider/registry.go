// Package provider holds the registry of configured identity providers and
// resolves each registration's strategy reference to a concrete factory.
//
// The registry is configuration state: populated at startup, finalized once
// (which eagerly resolves and validates every strategy so a missing adapter
// aborts the process instead of surfacing as 500s under traffic), then
// frozen. After Finalize it is read-only and safe for concurrent use
// without locking.
package provider

import (
	"strings"
	"sync"

	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// Registration describes one configured provider.
type Registration struct {
	// Name is the unique provider name used in routes.
	Name string

	// Options are the construction arguments for the strategy.
	Options strategy.Options

	// RequestPath and CallbackPath are the computed route paths.
	RequestPath  string
	CallbackPath string

	ref     any // factory, or a string reference resolved at finalize
	factory strategy.Factory
}

// NewStrategy constructs a fresh strategy instance for one request, using a
// copy of the registered options so setup hooks can mutate them safely.
func (reg *Registration) NewStrategy() (strategy.Strategy, strategy.Options, error) {
	opts := reg.Options.Clone()
	st, err := reg.factory(reg.Name, opts)
	if err != nil {
		return nil, nil, err
	}
	return st, opts, nil
}

// Registry holds provider registrations keyed by name, in registration
// order.
type Registry struct {
	prefix string

	mu     sync.Mutex
	order  []*Registration
	byName map[string]*Registration
	frozen bool
}

// NewRegistry creates an empty registry. prefix is the path prefix under
// which provider routes are mounted (default "/auth").
func NewRegistry(prefix string) *Registry {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/auth"
	}
	return &Registry{
		prefix: prefix,
		byName: make(map[string]*Registration),
	}
}

// Prefix returns the mount prefix.
func (r *Registry) Prefix() string { return r.prefix }

// Register adds a provider under a unique name.
//
// ref identifies the strategy implementation and may be:
//   - a concrete strategy.Factory
//   - a factory name registered via RegisterFactory ("developer")
//   - a qualified reference whose conventional short name is registered
//     (".../strategy/developer.Factory")
//
// String references are resolved at Finalize so misconfiguration is
// reported once, at startup.
func (r *Registry) Register(name string, ref any, opts strategy.Options) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return configErr("", "empty provider name")
	}
	if strings.ContainsAny(name, "/ ") {
		return configErr(name, "provider name must not contain '/' or spaces")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return configErr(name, "registry already finalized")
	}
	if _, dup := r.byName[name]; dup {
		return configErr(name, "duplicate provider registration")
	}

	switch ref.(type) {
	case strategy.Factory, func(string, strategy.Options) (strategy.Strategy, error), string:
	default:
		return configErr(name, "unsupported strategy reference type %T", ref)
	}

	reg := &Registration{
		Name:         name,
		Options:      opts.Clone(),
		RequestPath:  r.prefix + "/" + name,
		CallbackPath: r.prefix + "/" + name + "/callback",
		ref:          ref,
	}
	r.order = append(r.order, reg)
	r.byName[name] = reg
	return nil
}

// Finalize eagerly resolves every registration's strategy reference and
// constructs a probe instance to validate the options, then freezes the
// registry. Must be called before serving; any error is fatal.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}

	for _, reg := range r.order {
		factory, err := resolveRef(reg.Name, reg.ref)
		if err != nil {
			return err
		}
		probe, err := factory(reg.Name, reg.Options.Clone())
		if err != nil {
			return &ConfigurationError{
				Provider: reg.Name,
				Reason:   "strategy construction failed",
				Cause:    err,
			}
		}
		if probe == nil {
			return configErr(reg.Name, "strategy factory returned nil")
		}
		reg.factory = factory
	}

	r.frozen = true
	return nil
}

// Frozen reports whether Finalize has run.
func (r *Registry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// Clone returns an unfrozen deep copy. A derived configuration starts from
// the parent's provider list and may add more without mutating it.
func (r *Registry) Clone() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := NewRegistry(r.prefix)
	for _, reg := range r.order {
		cp := &Registration{
			Name:         reg.Name,
			Options:      reg.Options.Clone(),
			RequestPath:  reg.RequestPath,
			CallbackPath: reg.CallbackPath,
			ref:          reg.ref,
			factory:      reg.factory,
		}
		out.order = append(out.order, cp)
		out.byName[cp.Name] = cp
	}
	return out
}

// Lookup returns the registration for a provider name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byName[name]
	return reg, ok
}

// Providers returns the registered provider names in registration order.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.order))
	for _, reg := range r.order {
		names = append(names, reg.Name)
	}
	return names
}

// Match maps a request path to a registration and phase. First match wins;
// unmatched paths (including unregistered provider names) report ok=false
// so the request falls through to the host router.
func (r *Registry) Match(path string) (reg *Registration, phase strategy.Phase, ok bool) {
	rest, found := strings.CutPrefix(path, r.prefix+"/")
	if !found {
		return nil, "", false
	}
	rest = strings.TrimRight(rest, "/")

	name, suffix, _ := strings.Cut(rest, "/")

	r.mu.Lock()
	reg, known := r.byName[name]
	r.mu.Unlock()
	if !known {
		return nil, "", false
	}

	switch suffix {
	case "":
		return reg, strategy.PhaseRequest, true
	case "callback":
		return reg, strategy.PhaseCallback, true
	default:
		return nil, "", false
	}
}

func resolveRef(name string, ref any) (strategy.Factory, error) {
	switch v := ref.(type) {
	case strategy.Factory:
		return v, nil
	case func(string, strategy.Options) (strategy.Strategy, error):
		return v, nil
	case string:
		if f, ok := lookupFactory(v); ok {
			return f, nil
		}
		if f, ok := lookupFactory(shortName(v)); ok {
			return f, nil
		}
		return nil, configErr(name, "no strategy factory registered for %q (installed: %s)",
			v, strings.Join(Factories(), ", "))
	default:
		return nil, configErr(name, "unsupported strategy reference type %T", ref)
	}
}
