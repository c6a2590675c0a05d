// Package github implements delegated login with GitHub's OAuth 2.0.
// Unlike Google, GitHub issues no ID token, so the callback phase makes a
// separate API call for the user profile (and another for the email, which
// many accounts keep private).
package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

func init() {
	provider.RegisterFactory("github", Factory)
}

// Factory builds a GitHub strategy. Options:
//
//	"client_id"      required
//	"client_secret"  required
//	"redirect_url"   overrides the computed callback URL when set
//	"scopes"         space-separated, default "user:email read:user"
func Factory(name string, opts strategy.Options) (strategy.Strategy, error) {
	s := &Strategy{name: name}
	if err := s.Configure(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// Strategy is the GitHub OAuth adapter.
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
		return errors.New("github: client_id and client_secret are required")
	}
	if raw := opts.String("scopes", ""); raw != "" {
		s.scopes = strings.Fields(raw)
	} else {
		s.scopes = nil // client applies its defaults
	}
	return nil
}

func (s *Strategy) client(req *strategy.Request) *oauthClient {
	redirect := s.redirectURL
	if redirect == "" {
		redirect = req.CallbackURL
	}
	return newOAuthClient(s.clientID, s.clientSecret, redirect, s.scopes)
}

func (s *Strategy) RequestPhase(ctx context.Context, req *strategy.Request) (*strategy.Response, error) {
	state := strategy.RandomToken()
	req.Session.Set(strategy.StateKey(s.name), state)

	authURL := s.client(req).authURL(state)
	return strategy.Redirect(authURL), nil
}

func (s *Strategy) CallbackPhase(ctx context.Context, req *strategy.Request) (*strategy.Payload, error) {
	if errParam := req.Params.Get("error"); errParam != "" {
		kind := strategy.KindInvalidResponse
		if errParam == "access_denied" {
			kind = strategy.KindAccessDenied
		}
		return nil, strategy.Failure(kind, fmt.Errorf("github: %s", errParam))
	}

	wantState := req.Session.GetString(strategy.StateKey(s.name))
	req.Session.Delete(strategy.StateKey(s.name))
	if wantState == "" || req.Params.Get("state") != wantState {
		return nil, strategy.Failure(strategy.KindCSRFDetected, errors.New("github: state mismatch"))
	}
	code := req.Params.Get("code")
	if code == "" {
		return nil, strategy.Failure(strategy.KindInvalidResponse, errors.New("github: missing code"))
	}

	client := s.client(req)
	tr, err := client.exchangeCode(ctx, code)
	if err != nil {
		return nil, strategy.Failure(strategy.KindInvalidCredentials, err)
	}
	user, err := client.userWithEmail(ctx, tr.AccessToken)
	if err != nil {
		return nil, strategy.Failure(strategy.KindInvalidResponse, err)
	}

	info := map[string]any{
		"email":    user.Email,
		"name":     user.Name,
		"nickname": user.Login,
		"image":    user.AvatarURL,
		"urls":     map[string]any{"github": user.HTMLURL},
	}
	if user.Name == "" {
		info["name"] = user.Login
	}
	credentials := map[string]any{
		"token": tr.AccessToken,
		"scope": tr.Scope,
	}
	extra := map[string]any{
		"bio":      user.Bio,
		"location": user.Location,
		"company":  user.Company,
	}

	return &strategy.Payload{
		Provider:    s.name,
		UID:         strconv.FormatInt(user.ID, 10),
		Info:        info,
		Credentials: credentials,
		Extra:       extra,
		Params:      req.Params,
		Origin:      req.Origin,
	}, nil
}
