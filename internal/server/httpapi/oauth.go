package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/federated"
)

const (
	stateCookieName = "__oauth_state"
	stateTTL        = 5 * time.Minute
)

func (s *Server) oauthStart(w http.ResponseWriter, r *http.Request) {
	provider, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	state, err := federated.State()
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	if !validState(r) {
		writeError(ctx, w, s.logger, common.NewError(common.ErrorUnauthorized, "invalid oauth state"))
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(ctx, w, s.logger, common.NewError(common.ErrorInvalidInput, "code missing"))
		return
	}

	id, err := provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn(ctx, "oauth exchange failed", "provider", provider.Name(), "error", err)
		writeError(ctx, w, s.logger, common.WrapError(common.ErrorUnauthorized, "provider login failed", err))
		return
	}

	res, err := s.auth.FederatedLogin(ctx, id)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func validState(r *http.Request) bool {
	state := r.URL.Query().Get("state")
	if state == "" {
		return false
	}
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}
