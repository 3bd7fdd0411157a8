package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/store"
	"github.com/bdobrica/spaces/internal/spaces/verify"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	MaxSpaces int    `json:"max_spaces"`
	IsAdmin   bool   `json:"is_admin"`
	HasHCLink bool   `json:"hackclub_linked"`
	HCStatus  string `json:"hackclub_verification_status,omitempty"`
	HasAPIKey bool   `json:"hackatime_configured"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		MaxSpaces: u.MaxSpaces,
		IsAdmin:   u.IsAdmin,
		HasHCLink: u.HackclubID.Valid,
		HCStatus:  u.HackclubVerificationStatus.String,
		HasAPIKey: u.HackatimeAPIKey.Valid && u.HackatimeAPIKey.String != "",
	}
}

// handleAuthRequest issues an email verification code. The response is the
// same whether or not the address has an account, so it cannot be used to
// enumerate users.
func (s *Server) handleAuthRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decodeValid(w, r, "auth_request", &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.verifier.Issue(r.Context(), email); err != nil {
		s.log.Error("failed to issue verification code", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

// handleAuthVerify redeems a code, creating the account on first login, and
// returns a fresh bearer token.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Username string `json:"username"`
	}
	if !s.decodeValid(w, r, "auth_verify", &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.verifier.Redeem(email, req.Code); err != nil {
		if errors.Is(err, verify.ErrInvalidCode) {
			writeError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		writeLifecycleError(w, r, err)
		return
	}

	token, err := lifecycle.GenerateToken()
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	switch {
	case err == store.ErrNotFound:
		username := req.Username
		if username == "" {
			username = usernameFromEmail(email)
		}
		user = &store.User{Email: email, Username: username, Token: token}
		if err := s.store.CreateUser(r.Context(), user); err != nil {
			s.log.Error("failed to create user", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}
		s.log.Info("account created", "user_id", user.ID)
	case err != nil:
		writeLifecycleError(w, r, err)
		return
	default:
		// Existing account: rotate the session token.
		if err := s.store.RotateUserToken(r.Context(), user.ID, token); err != nil {
			writeLifecycleError(w, r, err)
			return
		}
		user.Token = token
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

// handleSignout invalidates the presented token by rotating it.
func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	token, err := lifecycle.GenerateToken()
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	if err := s.store.RotateUserToken(r.Context(), user.ID, token); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFrom(r.Context())))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        *string `json:"username"`
		HackatimeAPIKey *string `json:"hackatime_api_key"`
	}
	if !s.decodeValid(w, r, "update_user", &req) {
		return
	}

	user := userFrom(r.Context())
	if err := s.store.UpdateUserProfile(r.Context(), user.ID, req.Username, req.HackatimeAPIKey); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	updated, err := s.store.GetUser(r.Context(), user.ID)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// handleEmailChangeRequest sends a verification code to the address the user
// wants to move to. The code proves they control the new mailbox.
func (s *Server) handleEmailChangeRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decodeValid(w, r, "auth_request", &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		writeError(w, http.StatusConflict, "email already in use")
		return
	} else if err != store.ErrNotFound {
		writeLifecycleError(w, r, err)
		return
	}

	if err := s.verifier.Issue(r.Context(), email); err != nil {
		s.log.Error("failed to issue email change code", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

// handleEmailChangeConfirm redeems the code sent to the new address and moves
// the account over to it.
func (s *Server) handleEmailChangeConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !s.decodeValid(w, r, "change_email", &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.verifier.Redeem(email, req.Code); err != nil {
		if errors.Is(err, verify.ErrInvalidCode) {
			writeError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		writeLifecycleError(w, r, err)
		return
	}

	// Re-check under the redeemed code; the address may have been claimed
	// between request and confirm.
	if _, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		writeError(w, http.StatusConflict, "email already in use")
		return
	} else if err != store.ErrNotFound {
		writeLifecycleError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	if err := s.store.UpdateUserEmail(r.Context(), user.ID, email); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	s.log.Info("account email changed", "user_id", user.ID)

	updated, err := s.store.GetUser(r.Context(), user.ID)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	q, err := s.manager.GetQuota(r.Context(), user)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"used": q.Used, "limit": q.Limit})
}

func usernameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
