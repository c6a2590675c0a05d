package session

import (
	"fmt"
	"net/http"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
)

// Bridge scopes one loaded session around a unit of work so the host
// application and the strategy adapters observe the same logical session.
//
// The session is passed explicitly into fn rather than stashed in ambient
// request state; whatever fn (and the strategy it runs) mutates is
// persisted through the store when fn returns, on both the success and the
// error path. Save runs before the caller writes the response body, which
// is what lets token-mode stores round-trip mutations into the outgoing
// response.
type Bridge struct {
	store Store
}

// NewBridge wraps a session store.
func NewBridge(store Store) *Bridge {
	return &Bridge{store: store}
}

// With loads the host session, runs fn with it, and persists mutations.
// A load failure aborts before fn runs: bridging never fails silently.
// The save runs in a defer, so mutations survive a panic in fn (which then
// propagates to the outer recover middleware).
func (b *Bridge) With(w http.ResponseWriter, r *http.Request, fn func(s *Session) error) (err error) {
	sess, loadErr := b.store.Load(r)
	if loadErr != nil {
		return fmt.Errorf("bridge session: %w", loadErr)
	}

	defer func() {
		if !sess.Dirty() {
			return
		}
		if saveErr := b.store.Save(w, r, sess); saveErr != nil {
			if err == nil {
				err = fmt.Errorf("persist session: %w", saveErr)
				return
			}
			// fn already failed; keep its error but leave a trace.
			logger.From(r.Context()).Error("session save failed after phase error",
				logger.Err(saveErr),
			)
		}
	}()

	return fn(sess)
}
