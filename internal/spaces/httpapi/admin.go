package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/spaces/internal/spaces/store"
)

func (s *Server) handleAdminAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSpaceStats(r.Context())
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	userCount, err := s.store.CountUsers(r.Context())
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":    userCount,
		"total_spaces":   stats.TotalSpaces,
		"running_spaces": stats.RunningSpaces,
		"spaces_by_type": stats.CountByType,
	})
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	type row struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		Username   string `json:"username"`
		MaxSpaces  int    `json:"max_spaces"`
		IsAdmin    bool   `json:"is_admin"`
		SpaceCount int    `json:"space_count"`
	}
	resp := make([]row, 0, len(users))
	for _, u := range users {
		resp = append(resp, row{
			ID: u.ID, Email: u.Email, Username: u.Username,
			MaxSpaces: u.MaxSpaces, IsAdmin: u.IsAdmin, SpaceCount: u.SpaceCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxSpaces *int  `json:"max_spaces"`
		IsAdmin   *bool `json:"is_admin"`
	}
	if !s.decodeValid(w, r, "admin_update_user", &req) {
		return
	}

	updated, err := s.store.AdminUpdateUser(r.Context(), chi.URLParam(r, "id"), req.MaxSpaces, req.IsAdmin)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// handleAdminDeleteUser removes an account after tearing down its spaces.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := s.store.GetUser(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	spaces, err := s.store.ListSpacesByUser(r.Context(), target.ID)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	for _, sp := range spaces {
		if err := s.manager.AdminDelete(r.Context(), sp.ID); err != nil {
			writeLifecycleError(w, r, err)
			return
		}
	}

	if err := s.store.DeleteUser(r.Context(), target.ID); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	s.log.Info("user deleted by admin",
		"user_id", target.ID, "admin_id", userFrom(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.store.ListAllSpaces(r.Context())
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	type row struct {
		spaceResponse
		OwnerEmail    string `json:"owner_email"`
		OwnerUsername string `json:"owner_username"`
	}
	resp := make([]row, 0, len(spaces))
	for _, sp := range spaces {
		item := row{
			spaceResponse: toSpaceResponse(&sp.Space),
			OwnerEmail:    sp.OwnerEmail,
			OwnerUsername: sp.OwnerUsername,
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminDeleteSpace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.manager.AdminDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	s.log.Info("space deleted by admin",
		"space_id", chi.URLParam(r, "id"),
		"admin_id", userFrom(r.Context()).ID,
		"duration", time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}
