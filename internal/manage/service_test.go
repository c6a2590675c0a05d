package manage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/core"
	"github.com/dropDatabas3/authbridge/internal/store/memory"
)

func newService(t *testing.T, cfg Config) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	resolver := resolution.New(repo, resolution.Config{AutoCreate: true, UpdateIdentity: true})
	return New(repo, resolver, cfg), repo
}

func seedAccount(t *testing.T, repo core.Repository, login, password string, providers ...string) *core.Account {
	t.Helper()
	ctx := context.Background()

	acct := &core.Account{Login: login, Status: core.StatusOpen}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		s := string(hash)
		acct.PasswordHash = &s
	}
	require.NoError(t, repo.CreateAccount(ctx, acct))
	for _, p := range providers {
		require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{
			AccountID: acct.ID, Provider: p, UID: "uid-" + p,
		}))
	}
	return acct
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, Config{})
	acct := seedAccount(t, repo, "a@example.com", "", "github", "google")

	require.NoError(t, svc.Disconnect(ctx, acct.ID, "github", ""))

	providers, err := svc.ConnectedProviders(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"google"}, providers)

	require.ErrorIs(t, svc.Disconnect(ctx, acct.ID, "github", ""), ErrNotConnected)
}

func TestDisconnectPasswordPolicy(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, Config{RemovalRequiresPassword: true})
	acct := seedAccount(t, repo, "b@example.com", "hunter2", "github")

	require.ErrorIs(t, svc.Disconnect(ctx, acct.ID, "github", ""), ErrPasswordRequired)
	require.ErrorIs(t, svc.Disconnect(ctx, acct.ID, "github", "wrong"), ErrInvalidPassword)

	// Identity still connected after the refused attempts.
	idents, err := svc.Identities(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, idents, 1)

	require.NoError(t, svc.Disconnect(ctx, acct.ID, "github", "hunter2"))
}

func TestDisconnectPasswordPolicySkipsPasswordlessAccounts(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, Config{RemovalRequiresPassword: true})
	acct := seedAccount(t, repo, "c@example.com", "", "github")

	// No password on the account, nothing to verify.
	require.NoError(t, svc.Disconnect(ctx, acct.ID, "github", ""))
}

func TestCloseAccount(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, Config{})
	acct := seedAccount(t, repo, "d@example.com", "", "github", "google")

	require.NoError(t, svc.CloseAccount(ctx, acct.ID))

	got, err := repo.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusClosed, got.Status)

	idents, err := repo.ListAccountIdentities(ctx, acct.ID)
	require.NoError(t, err)
	require.Empty(t, idents)

	// The freed (provider, uid) pair can be claimed again.
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{
		AccountID: "", Provider: "github", UID: "uid-github",
	}))
}

func TestAuthenticationMethods(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, Config{})
	acct := seedAccount(t, repo, "e@example.com", "", "github")

	methods, err := svc.AuthenticationMethods(ctx, acct.ID, []string{"otp"})
	require.NoError(t, err)
	require.Equal(t, []string{"otp", resolution.MethodExternal}, methods)
}

// HTTP layer.

func newHandlerEnv(t *testing.T, cfg Config) (*Handler, *memory.Store, session.Store) {
	t.Helper()
	repo := memory.New()
	resolver := resolution.New(repo, resolution.Config{})
	sessions := session.NewMemoryStore("sid", time.Hour)
	return NewHandler(New(repo, resolver, cfg), sessions), repo, sessions
}

func loginCookie(t *testing.T, sessions session.Store, accountID string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	sess := session.New()
	sess.SetAccountID(accountID)
	require.NoError(t, sessions.Save(w, httptest.NewRequest("GET", "/", nil), sess))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestHandlerRequiresLogin(t *testing.T) {
	h, _, _ := newHandlerEnv(t, Config{})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/identities")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerListAndDisconnect(t *testing.T) {
	h, repo, sessions := newHandlerEnv(t, Config{})
	acct := seedAccount(t, repo, "f@example.com", "", "github")
	ck := loginCookie(t, sessions, acct.ID)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest("GET", srv.URL+"/identities", nil)
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Identities []struct {
			Provider string `json:"provider"`
			UID      string `json:"uid"`
		} `json:"identities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed.Identities, 1)
	require.Equal(t, "github", listed.Identities[0].Provider)

	body, _ := json.Marshal(map[string]string{})
	req, _ = http.NewRequest("DELETE", srv.URL+"/identities/github", bytes.NewReader(body))
	req.AddCookie(ck)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second disconnect: nothing left to remove.
	req, _ = http.NewRequest("DELETE", srv.URL+"/identities/github", bytes.NewReader(body))
	req.AddCookie(ck)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerCloseAccount(t *testing.T) {
	h, repo, sessions := newHandlerEnv(t, Config{})
	acct := seedAccount(t, repo, "g@example.com", "", "github")
	ck := loginCookie(t, sessions, acct.ID)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/close", nil)
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := repo.GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusClosed, got.Status)
}
