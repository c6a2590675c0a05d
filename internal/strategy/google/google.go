// Package google implements delegated login against Google's OpenID
// Connect endpoints. The request phase redirects to the consent screen
// with state and nonce stashed in the session; the callback phase
// exchanges the code and verifies the ID token before producing the
// payload.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

func init() {
	provider.RegisterFactory("google", Factory)
}

var defaultScopes = []string{"openid", "email", "profile"}

// Factory builds a Google strategy. Options:
//
//	"client_id"      required
//	"client_secret"  required
//	"redirect_url"   overrides the computed callback URL when set
//	"scopes"         space-separated, default "openid email profile"
func Factory(name string, opts strategy.Options) (strategy.Strategy, error) {
	s := &Strategy{name: name}
	if err := s.Configure(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// Strategy is the Google OIDC adapter.
type Strategy struct {
	name         string
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string
}

func (s *Strategy) Name() string { return s.name }

func (s *Strategy) Configure(opts strategy.Options) error {
	s.clientID = opts.String("client_id", "")
	s.clientSecret = opts.String("client_secret", "")
	s.redirectURL = opts.String("redirect_url", "")
	if s.clientID == "" || s.clientSecret == "" {
		return errors.New("google: client_id and client_secret are required")
	}
	if raw := opts.String("scopes", ""); raw != "" {
		s.scopes = strings.Fields(raw)
	} else {
		s.scopes = defaultScopes
	}
	return nil
}

func (s *Strategy) client(req *strategy.Request) *oidcClient {
	redirect := s.redirectURL
	if redirect == "" {
		redirect = req.CallbackURL
	}
	return newOIDCClient(s.clientID, s.clientSecret, redirect, s.scopes)
}

func (s *Strategy) RequestPhase(ctx context.Context, req *strategy.Request) (*strategy.Response, error) {
	state := strategy.RandomToken()
	nonce := strategy.RandomToken()
	req.Session.Set(strategy.StateKey(s.name), state)
	req.Session.Set(strategy.NonceKey(s.name), nonce)

	authURL, err := s.client(req).authURL(ctx, state, nonce)
	if err != nil {
		return nil, strategy.Failure(strategy.KindServiceUnavailable, err)
	}
	return strategy.Redirect(authURL), nil
}

func (s *Strategy) CallbackPhase(ctx context.Context, req *strategy.Request) (*strategy.Payload, error) {
	if errParam := req.Params.Get("error"); errParam != "" {
		kind := strategy.KindInvalidResponse
		if errParam == "access_denied" {
			kind = strategy.KindAccessDenied
		}
		return nil, strategy.Failure(kind, fmt.Errorf("google: %s", errParam))
	}

	wantState := req.Session.GetString(strategy.StateKey(s.name))
	nonce := req.Session.GetString(strategy.NonceKey(s.name))
	req.Session.Delete(strategy.StateKey(s.name))
	req.Session.Delete(strategy.NonceKey(s.name))

	if wantState == "" || req.Params.Get("state") != wantState {
		return nil, strategy.Failure(strategy.KindCSRFDetected, errors.New("google: state mismatch"))
	}
	code := req.Params.Get("code")
	if code == "" {
		return nil, strategy.Failure(strategy.KindInvalidResponse, errors.New("google: missing code"))
	}

	client := s.client(req)
	tr, err := client.exchangeCode(ctx, code)
	if err != nil {
		return nil, strategy.Failure(strategy.KindInvalidCredentials, err)
	}
	claims, err := client.verifyIDToken(ctx, tr.IDToken, nonce)
	if err != nil {
		return nil, strategy.Failure(strategy.KindInvalidResponse, err)
	}

	info := map[string]any{
		"email":          claims.Email,
		"email_verified": claims.EmailVerified,
		"name":           claims.Name,
		"first_name":     claims.GivenName,
		"last_name":      claims.FamilyName,
		"image":          claims.Picture,
	}
	credentials := map[string]any{
		"token":      tr.AccessToken,
		"expires_in": tr.ExpiresIn,
	}
	if tr.RefreshTok != "" {
		credentials["refresh_token"] = tr.RefreshTok
	}
	extra := map[string]any{
		"locale": claims.Locale,
	}
	if claims.Hd != "" {
		extra["hd"] = claims.Hd
	}

	return &strategy.Payload{
		Provider:    s.name,
		UID:         claims.Sub,
		Info:        info,
		Credentials: credentials,
		Extra:       extra,
		Params:      req.Params,
		Origin:      req.Origin,
	}, nil
}
