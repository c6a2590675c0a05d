package manage

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/authbridge/internal/http/errors"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/core"
)

// Handler serves the JSON manage endpoints for the logged-in account.
type Handler struct {
	svc      *Service
	sessions session.Store
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, sessions session.Store) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

// Routes mounts the manage endpoints:
//
//	GET    /identities            linked identities
//	DELETE /identities/{provider} disconnect one provider
//	GET    /methods               available authentication methods
//	POST   /close                 close the account and unlink everything
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/identities", h.listIdentities)
	r.Delete("/identities/{provider}", h.disconnect)
	r.Get("/methods", h.methods)
	r.Post("/close", h.closeAccount)
	return r
}

// accountID authenticates the request via the session store. Empty return
// means the error response was already written.
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) string {
	sess, err := h.sessions.Load(r)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return ""
	}
	if !sess.LoggedIn() {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return ""
	}
	return sess.AccountID()
}

func (h *Handler) listIdentities(w http.ResponseWriter, r *http.Request) {
	accountID := h.accountID(w, r)
	if accountID == "" {
		return
	}

	idents, err := h.svc.Identities(r.Context(), accountID)
	if err != nil {
		httperrors.WriteError(w, httperrors.FromError(err))
		return
	}

	type identityDTO struct {
		Provider  string `json:"provider"`
		UID       string `json:"uid"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]identityDTO, 0, len(idents))
	for _, ident := range idents {
		out = append(out, identityDTO{
			Provider:  ident.Provider,
			UID:       ident.UID,
			CreatedAt: ident.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"identities": out})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	accountID := h.accountID(w, r)
	if accountID == "" {
		return
	}
	providerName := chi.URLParam(r, "provider")

	var body struct {
		Password string `json:"password"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // password is optional
	}

	err := h.svc.Disconnect(r.Context(), accountID, providerName, body.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"disconnected": providerName})
	case errors.Is(err, ErrPasswordRequired):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("password required"))
	case errors.Is(err, ErrInvalidPassword):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("invalid password"))
	case errors.Is(err, ErrNotConnected), errors.Is(err, core.ErrNotFound):
		httperrors.WriteError(w, httperrors.ErrNotFound)
	default:
		httperrors.WriteError(w, httperrors.FromError(err))
	}
}

func (h *Handler) methods(w http.ResponseWriter, r *http.Request) {
	accountID := h.accountID(w, r)
	if accountID == "" {
		return
	}

	reported := r.URL.Query()["reported"]
	methods, err := h.svc.AuthenticationMethods(r.Context(), accountID, reported)
	if err != nil {
		httperrors.WriteError(w, httperrors.FromError(err))
		return
	}
	if methods == nil {
		methods = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": methods})
}

func (h *Handler) closeAccount(w http.ResponseWriter, r *http.Request) {
	accountID := h.accountID(w, r)
	if accountID == "" {
		return
	}

	if err := h.svc.CloseAccount(r.Context(), accountID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.FromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
