package provider

import "fmt"

// ConfigurationError reports an invalid provider configuration: duplicate
// names, unresolvable strategy references, registration after freeze.
// Always fatal at startup, never recovered at request time.
type ConfigurationError struct {
	Provider string
	Reason   string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("provider configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

func configErr(provider, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}
