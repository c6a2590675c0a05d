package developer

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/dropDatabas3/authbridge/internal/strategy"
)

func newStrategy(t *testing.T, opts strategy.Options) strategy.Strategy {
	t.Helper()
	st, err := Factory("developer", opts)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return st
}

func TestRequestPhaseRendersForm(t *testing.T) {
	st := newStrategy(t, nil)
	resp, err := st.RequestPhase(context.Background(), &strategy.Request{
		CallbackURL: "http://localhost:8080/auth/developer/callback",
	})
	if err != nil {
		t.Fatalf("request phase: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	body := string(resp.Body)
	if !strings.Contains(body, `action="http://localhost:8080/auth/developer/callback"`) {
		t.Fatalf("form does not post to the callback:\n%s", body)
	}
	if !strings.Contains(body, `name="email"`) || !strings.Contains(body, `name="name"`) {
		t.Fatal("form is missing the input fields")
	}
}

func TestRequestPhaseIsGetOnly(t *testing.T) {
	st := newStrategy(t, nil)
	mr, ok := st.(strategy.MethodRestricted)
	if !ok {
		t.Fatal("developer strategy should restrict request methods")
	}
	if got := mr.AllowedRequestMethods(); len(got) != 1 || got[0] != http.MethodGet {
		t.Fatalf("allowed = %v", got)
	}
}

func TestCallbackPhase(t *testing.T) {
	st := newStrategy(t, nil)

	p, err := st.CallbackPhase(context.Background(), &strategy.Request{
		Params: url.Values{"email": {"dev@example.com"}, "name": {"Dev"}},
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if p.UID != "dev@example.com" {
		t.Errorf("uid = %q", p.UID)
	}
	if p.Email() != "dev@example.com" || p.Name() != "Dev" {
		t.Errorf("info = %v", p.Info)
	}
}

func TestCallbackPhaseMissingUID(t *testing.T) {
	st := newStrategy(t, nil)

	_, err := st.CallbackPhase(context.Background(), &strategy.Request{Params: url.Values{}})
	var he *strategy.HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("want HandshakeError, got %v", err)
	}
	if he.Kind != strategy.KindInvalidCredentials {
		t.Fatalf("kind = %q", he.Kind)
	}
}

func TestCustomUIDField(t *testing.T) {
	st := newStrategy(t, strategy.Options{"uid_field": "name"})

	p, err := st.CallbackPhase(context.Background(), &strategy.Request{
		Params: url.Values{"name": {"Dev"}},
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if p.UID != "Dev" {
		t.Errorf("uid = %q", p.UID)
	}
}
