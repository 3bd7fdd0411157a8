package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/spaces/internal/spaces/clubs"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

type membershipResponse struct {
	Club        string    `json:"club"`
	DisplayName string    `json:"display_name,omitempty"`
	Country     string    `json:"country,omitempty"`
	Role        string    `json:"role"`
	IsPrimary   bool      `json:"is_primary"`
	JoinedAt    time.Time `json:"joined_at"`
}

func toMembershipResponse(m *store.MembershipWithClub) membershipResponse {
	return membershipResponse{
		Club:        m.Club.ClubName,
		DisplayName: m.Club.DisplayName.String,
		Country:     m.Club.Country.String,
		Role:        m.Role,
		IsPrimary:   m.IsPrimary,
		JoinedAt:    m.CreatedAt,
	}
}

func (s *Server) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	memberships, err := s.clubs.Memberships(r.Context(), user)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	resp := make([]membershipResponse, 0, len(memberships))
	for _, m := range memberships {
		resp = append(resp, toMembershipResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncMembership(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	m, err := s.clubs.SyncMembership(r.Context(), user)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]any{"membership": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"membership": toMembershipResponse(m)})
}

func (s *Server) handleClubDetails(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	details, err := s.clubs.Details(r.Context(), user, chi.URLParam(r, "club"))
	if errors.Is(err, clubs.ErrNotMember) {
		writeError(w, http.StatusNotFound, "club not found")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	resp := map[string]any{
		"club":         details.Club.ClubName,
		"display_name": details.Club.DisplayName.String,
		"country":      details.Club.Country.String,
	}
	if details.Directory != nil {
		resp["display_name"] = details.Directory.DisplayName
		resp["country"] = details.Directory.Country
		resp["directory_role"] = details.Directory.Role
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaveClub(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	err := s.clubs.Leave(r.Context(), user, chi.URLParam(r, "club"))
	if errors.Is(err, clubs.ErrNotMember) {
		writeError(w, http.StatusNotFound, "membership not found")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShareSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Club string `json:"club"`
	}
	if !s.decodeValid(w, r, "share_space", &req) {
		return
	}

	user := userFrom(r.Context())
	share, err := s.clubs.ShareSpace(r.Context(), user, chi.URLParam(r, "id"), req.Club)
	switch {
	case errors.Is(err, clubs.ErrNotOwner):
		writeError(w, http.StatusNotFound, "space not found")
		return
	case errors.Is(err, clubs.ErrNotMember):
		writeError(w, http.StatusForbidden, "not a member of this club")
		return
	case err != nil:
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         share.ID,
		"space_id":   share.SpaceID,
		"permission": share.Permission,
		"created_at": share.CreatedAt,
	})
}

func (s *Server) handleUnshareSpace(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	err := s.clubs.UnshareSpace(r.Context(), user,
		chi.URLParam(r, "id"), chi.URLParam(r, "club"))
	switch {
	case errors.Is(err, clubs.ErrNotOwner):
		writeError(w, http.StatusNotFound, "space not found")
		return
	case errors.Is(err, clubs.ErrNotMember):
		writeError(w, http.StatusNotFound, "share not found")
		return
	case err != nil:
		writeLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sharedSpaceResponse struct {
	spaceResponse
	Owner string `json:"owner"`
	Club  string `json:"club"`
}

func (s *Server) handleSharedSpaces(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	spaces, err := s.clubs.SharedSpaces(r.Context(), user)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	resp := make([]sharedSpaceResponse, 0, len(spaces))
	for _, sp := range spaces {
		item := sharedSpaceResponse{
			spaceResponse: toSpaceResponse(&sp.Space),
			Owner:         sp.OwnerUsername,
			Club:          sp.ClubName,
		}
		// Shared views never expose the owner's credential-bearing URL.
		item.AccessURL = ""
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}
