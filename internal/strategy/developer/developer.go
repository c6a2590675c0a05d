// Package developer implements a credential-free strategy for local
// development and tests: the request phase renders a plain form and the
// callback phase trusts whatever the form submitted. Never enable it in
// production.
package developer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

func init() {
	provider.RegisterFactory("developer", Factory)
}

// Factory builds a developer strategy. Options:
//
//	"uid_field"  parameter used as the external uid (default "email")
//	"fields"     not configurable; the form always asks for name and email
func Factory(name string, opts strategy.Options) (strategy.Strategy, error) {
	s := &Strategy{name: name}
	if err := s.Configure(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// Strategy is the developer adapter.
type Strategy struct {
	name     string
	uidField string
}

func (s *Strategy) Name() string { return s.name }

func (s *Strategy) Configure(opts strategy.Options) error {
	s.uidField = opts.String("uid_field", "email")
	if s.uidField == "" {
		return errors.New("developer: uid_field must not be empty")
	}
	return nil
}

// AllowedRequestMethods restricts the request phase; the form must be
// fetched, not posted.
func (s *Strategy) AllowedRequestMethods() []string {
	return []string{http.MethodGet}
}

func (s *Strategy) RequestPhase(_ context.Context, req *strategy.Request) (*strategy.Response, error) {
	body := fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Developer Sign In</title></head><body>
<h1>Developer Sign In (%s)</h1>
<form method="post" action=%q>
  <label>Name <input type="text" name="name"></label>
  <label>Email <input type="email" name="email"></label>
  <button type="submit">Sign In</button>
</form>
</body></html>`, html.EscapeString(s.name), req.CallbackURL)
	return strategy.HTML(body), nil
}

func (s *Strategy) CallbackPhase(_ context.Context, req *strategy.Request) (*strategy.Payload, error) {
	uid := req.Params.Get(s.uidField)
	if uid == "" {
		return nil, strategy.Failure(strategy.KindInvalidCredentials,
			fmt.Errorf("developer: missing %s parameter", s.uidField))
	}

	info := map[string]any{}
	if email := req.Params.Get("email"); email != "" {
		info["email"] = email
	}
	if name := req.Params.Get("name"); name != "" {
		info["name"] = name
	}

	return &strategy.Payload{
		Provider: s.name,
		UID:      uid,
		Info:     info,
		Params:   req.Params,
		Origin:   req.Origin,
	}, nil
}
