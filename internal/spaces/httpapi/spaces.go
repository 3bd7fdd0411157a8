package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

type spaceResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Port        int        `json:"port"`
	AccessURL   string     `json:"access_url"`
	Running     bool       `json:"running"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toSpaceResponse(sp *store.Space) spaceResponse {
	resp := spaceResponse{
		ID:          sp.ID,
		Type:        sp.Type,
		Description: sp.Description,
		Image:       sp.Image,
		Port:        sp.Port,
		AccessURL:   sp.AccessURL,
		Running:     sp.Running,
		CreatedAt:   sp.CreatedAt,
	}
	if sp.StartedAt.Valid {
		t := sp.StartedAt.Time
		resp.StartedAt = &t
	}
	return resp
}

func (s *Server) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	spaces, err := s.manager.List(r.Context(), user)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	resp := make([]spaceResponse, 0, len(spaces))
	for _, sp := range spaces {
		resp = append(resp, toSpaceResponse(sp))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Password    string `json:"password"`
	}
	if !s.decodeValid(w, r, "create_space", &req) {
		return
	}

	user := userFrom(r.Context())
	sp, err := s.manager.Create(r.Context(), user, lifecycle.CreateRequest{
		Type:        req.Type,
		Description: req.Description,
		Password:    req.Password,
	})
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSpaceResponse(sp))
}

type spaceStatusResponse struct {
	spaceResponse
	LiveState    string `json:"live_state"`
	LiveRunning  bool   `json:"live_running"`
	LiveExitCode int    `json:"live_exit_code,omitempty"`
}

func (s *Server) handleSpaceStatus(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	st, err := s.manager.Status(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spaceStatusResponse{
		spaceResponse: toSpaceResponse(st.Space),
		LiveState:     string(st.Live.State),
		LiveRunning:   st.Live.Running,
		LiveExitCode:  st.Live.ExitCode,
	})
}

func (s *Server) handleUpdateSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !s.decodeValid(w, r, "update_space", &req) {
		return
	}

	user := userFrom(r.Context())
	id := chi.URLParam(r, "id")
	sp, err := s.store.GetSpaceOwned(r.Context(), id, user.ID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	if err := s.store.UpdateSpaceDescription(r.Context(), sp.ID, req.Description); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	sp.Description = req.Description
	writeJSON(w, http.StatusOK, toSpaceResponse(sp))
}

func (s *Server) handleStartSpace(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	sp, err := s.manager.Start(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpaceResponse(sp))
}

func (s *Server) handleStopSpace(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	sp, err := s.manager.Stop(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpaceResponse(sp))
}

func (s *Server) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := s.manager.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
