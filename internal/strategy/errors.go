package strategy

import "fmt"

// Well-known handshake error kinds. Strategies may report additional kinds;
// the dispatcher treats the kind as an opaque tag for the failure response.
const (
	KindCSRFDetected       = "csrf_detected"
	KindInvalidCredentials = "invalid_credentials"
	KindInvalidResponse    = "invalid_response"
	KindAccessDenied       = "access_denied"
	KindTimeout            = "timeout"
	KindServiceUnavailable = "service_unavailable"
)

// HandshakeError is a protocol-level failure reported by a strategy during
// either phase, tagged with a stable error kind.
type HandshakeError struct {
	Kind  string
	Cause error
}

func (e *HandshakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("handshake failed (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("handshake failed (%s)", e.Kind)
}

func (e *HandshakeError) Unwrap() error { return e.Cause }

// Failure builds a HandshakeError with the given kind.
func Failure(kind string, cause error) *HandshakeError {
	return &HandshakeError{Kind: kind, Cause: cause}
}
