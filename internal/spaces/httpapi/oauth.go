package httpapi

import (
	"database/sql"
	"net/http"
	"net/url"

	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/oauth"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

// handleOAuthLogin starts a provider login flow.
func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	state, err := lifecycle.GenerateToken()
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	if err := s.store.InsertOAuthState(r.Context(), &store.OAuthState{
		State: state, Mode: "login",
	}); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	http.Redirect(w, r, s.oauth.AuthURL(state), http.StatusFound)
}

// handleOAuthLink starts a flow that attaches the provider identity to the
// already authenticated account.
func (s *Server) handleOAuthLink(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	state, err := lifecycle.GenerateToken()
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	if err := s.store.InsertOAuthState(r.Context(), &store.OAuthState{
		State:  state,
		Mode:   "link",
		UserID: sql.NullString{String: user.ID, Valid: true},
	}); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": s.oauth.AuthURL(state)})
}

// handleOAuthCallback finishes both flows. States are single use and expire
// after ten minutes.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, stateParam := q.Get("code"), q.Get("state")
	if code == "" || stateParam == "" {
		writeError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	flow, err := s.store.ConsumeOAuthState(r.Context(), stateParam, oauth.StateTTL)
	if err == store.ErrNotFound {
		writeError(w, http.StatusBadRequest, "unknown or expired state")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	accessToken, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.log.Error("oauth exchange failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider rejected the code")
		return
	}
	identity, err := s.oauth.FetchIdentity(r.Context(), accessToken)
	if err != nil {
		s.log.Error("oauth identity fetch failed", "err", err)
		writeError(w, http.StatusBadGateway, "failed to fetch identity")
		return
	}

	switch flow.Mode {
	case "link":
		s.finishLink(w, r, flow.UserID.String, identity)
	default:
		s.finishLogin(w, r, identity)
	}
}

func (s *Server) finishLink(w http.ResponseWriter, r *http.Request, userID string, id *oauth.Identity) {
	// Refuse to steal an identity already linked elsewhere.
	if other, err := s.store.GetUserByHackclubID(r.Context(), id.ID); err == nil && other.ID != userID {
		writeError(w, http.StatusConflict, "identity already linked to another account")
		return
	} else if err != nil && err != store.ErrNotFound {
		writeLifecycleError(w, r, err)
		return
	}

	if err := s.store.LinkHackclubIdentity(r.Context(), userID, id.ID, id.VerificationStatus); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	s.log.Info("identity linked", "user_id", userID)
	s.redirectFrontend(w, r, url.Values{"linked": {"1"}})
}

func (s *Server) finishLogin(w http.ResponseWriter, r *http.Request, id *oauth.Identity) {
	token, err := lifecycle.GenerateToken()
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	user, err := s.store.GetUserByHackclubID(r.Context(), id.ID)
	switch {
	case err == store.ErrNotFound:
		user = &store.User{
			Email:                      id.Email,
			Username:                   id.Username,
			Token:                      token,
			HackclubID:                 sql.NullString{String: id.ID, Valid: true},
			HackclubVerificationStatus: sql.NullString{String: id.VerificationStatus, Valid: id.VerificationStatus != ""},
		}
		if err := s.store.CreateUser(r.Context(), user); err != nil {
			s.log.Error("failed to create user from oauth", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}
		s.log.Info("account created via oauth", "user_id", user.ID)
	case err != nil:
		writeLifecycleError(w, r, err)
		return
	default:
		if err := s.store.RotateUserToken(r.Context(), user.ID, token); err != nil {
			writeLifecycleError(w, r, err)
			return
		}
	}

	s.redirectFrontend(w, r, url.Values{"token": {token}})
}

func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	target, err := url.Parse(s.frontendURL)
	if err != nil || s.frontendURL == "" {
		writeJSON(w, http.StatusOK, params)
		return
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
