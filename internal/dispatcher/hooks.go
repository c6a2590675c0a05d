package dispatcher

import (
	"context"

	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// HookContext is the mutable per-request state visible to hooks. Setup hooks
// may edit Options; the strategy is re-configured with the edited copy
// before the phase runs.
type HookContext struct {
	Provider string
	Phase    strategy.Phase
	Request  *strategy.Request
	Session  *session.Session
	Options  strategy.Options
	Strategy strategy.Strategy
}

// Hook is one step in the dispatch pipeline. Returning an error aborts the
// request through the failure channel.
type Hook func(ctx context.Context, hc *HookContext) error

// Hooks are the host-registered callback lists, run in registration order at
// fixed points of the pipeline: request-validation first (request phase
// only, after the built-in CSRF check), then before-phase, then setup.
// The order is part of the contract; setup hooks may depend on state the
// earlier hooks established.
type Hooks struct {
	RequestValidation []Hook
	BeforePhase       []Hook
	Setup             []Hook
}

func runHooks(ctx context.Context, hooks []Hook, hc *HookContext) error {
	for _, h := range hooks {
		if err := h(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
