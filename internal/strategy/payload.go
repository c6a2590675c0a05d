package strategy

import "net/url"

// Payload is the result of a completed external handshake, normalized
// across providers. It is request-scoped: produced once per callback and
// never persisted as-is (the store keeps serialized copies of the three
// data maps on the identity row).
type Payload struct {
	// Provider is the registered provider name.
	Provider string

	// UID is the externally asserted unique id for this user.
	UID string

	// Info carries profile fields (email, name, ...).
	Info map[string]any

	// Credentials carries tokens and secrets from the provider.
	Credentials map[string]any

	// Extra carries any raw provider data not covered above.
	Extra map[string]any

	// Params are the callback request parameters.
	Params url.Values

	// Origin is the URL the flow originated from, when known.
	Origin string
}

// Email returns the profile email, if present.
func (p *Payload) Email() string {
	return p.infoString("email")
}

// Name returns the profile display name, if present.
func (p *Payload) Name() string {
	return p.infoString("name")
}

func (p *Payload) infoString(key string) string {
	if p == nil || p.Info == nil {
		return ""
	}
	v, _ := p.Info[key].(string)
	return v
}
