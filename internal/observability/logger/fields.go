package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP fields.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Domain fields.

// Provider tags the external identity provider handling the request.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Phase is "request" or "callback".
func Phase(v string) zap.Field { return zap.String("phase", v) }

// UID is the externally asserted unique id. Log with care.
func UID(v string) zap.Field { return zap.String("uid", v) }

func AccountID(v string) zap.Field { return zap.String("account_id", v) }

func IdentityID(v string) zap.Field { return zap.String("identity_id", v) }

// Outcome is the terminal resolution state (logged_in, connected, rejected).
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

func ErrorKind(v string) zap.Field { return zap.String("error_kind", v) }

// System fields.

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

// Layer tags the layer (handler, dispatcher, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

// Generic fields.

func Count(v int) zap.Field { return zap.Int("count", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }
