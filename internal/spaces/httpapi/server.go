// Package httpapi exposes the service over REST: space lifecycle, accounts,
// club sharing, and the admin surface.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/spaces/common/version"
	"github.com/bdobrica/spaces/internal/spaces/clubs"
	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/oauth"
	"github.com/bdobrica/spaces/internal/spaces/store"
	"github.com/bdobrica/spaces/internal/spaces/verify"
)

// Options carries the server's collaborators and tunables.
type Options struct {
	Store    *store.Store
	Manager  *lifecycle.Manager
	Clubs    *clubs.Service
	Verifier *verify.Verifier
	OAuth    *oauth.Client
	Logger   *slog.Logger

	// AllowedOrigins feeds the CORS policy. Empty allows none.
	AllowedOrigins []string
	// FrontendURL is where OAuth callbacks send the browser back to.
	FrontendURL string
}

// Server is the HTTP layer. All domain decisions live below it; this layer
// authenticates, validates, rate limits, and translates errors.
type Server struct {
	store    *store.Store
	manager  *lifecycle.Manager
	clubs    *clubs.Service
	verifier *verify.Verifier
	oauth    *oauth.Client
	log      *slog.Logger

	frontendURL string
	schemas     map[string]*jsonschema.Schema

	strictLimiter    *rateLimiter
	authLimiter      *rateLimiter
	containerLimiter *rateLimiter
}

// NewServer wires the router. It fails only if an embedded schema does not
// compile, which is a build defect rather than a runtime condition.
func NewServer(opts Options) (*Server, http.Handler, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, nil, fmt.Errorf("compile request schemas: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		store:       opts.Store,
		manager:     opts.Manager,
		clubs:       opts.Clubs,
		verifier:    opts.Verifier,
		oauth:       opts.OAuth,
		log:         log,
		frontendURL: opts.FrontendURL,
		schemas:     schemas,

		strictLimiter:    newRateLimiter(3, 15*time.Minute),
		authLimiter:      newRateLimiter(5, 15*time.Minute),
		containerLimiter: newRateLimiter(20, time.Minute),
	}
	return s, s.routes(opts.AllowedOrigins), nil
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(withTrace)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.With(s.strictLimiter.middleware).Post("/auth/request", s.handleAuthRequest)
			r.With(s.authLimiter.middleware).Post("/auth/verify", s.handleAuthVerify)
		})

		r.Group(func(r chi.Router) {
			r.Get("/oauth/login", s.handleOAuthLogin)
			r.Get("/oauth/callback", s.handleOAuthCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/signout", s.handleSignout)
			r.Get("/oauth/link", s.handleOAuthLink)

			r.Get("/users/me", s.handleGetMe)
			r.Patch("/users/me", s.handleUpdateMe)
			r.Get("/users/me/quota", s.handleGetQuota)
			r.With(s.strictLimiter.middleware).Post("/users/me/email/request", s.handleEmailChangeRequest)
			r.With(s.authLimiter.middleware).Post("/users/me/email/confirm", s.handleEmailChangeConfirm)

			r.Route("/spaces", func(r chi.Router) {
				r.Use(s.containerLimiter.middleware)
				r.Get("/", s.handleListSpaces)
				r.Post("/", s.handleCreateSpace)
				r.Get("/{id}", s.handleSpaceStatus)
				r.Patch("/{id}", s.handleUpdateSpace)
				r.Post("/{id}/start", s.handleStartSpace)
				r.Post("/{id}/stop", s.handleStopSpace)
				r.Delete("/{id}", s.handleDeleteSpace)
				r.Post("/{id}/shares", s.handleShareSpace)
				r.Delete("/{id}/shares/{club}", s.handleUnshareSpace)
			})

			r.Route("/clubs", func(r chi.Router) {
				r.Get("/memberships", s.handleListMemberships)
				r.Post("/sync", s.handleSyncMembership)
				r.Get("/{club}", s.handleClubDetails)
				r.Delete("/{club}/membership", s.handleLeaveClub)
				r.Get("/shared-spaces", s.handleSharedSpaces)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/analytics", s.handleAdminAnalytics)
				r.Get("/users", s.handleAdminListUsers)
				r.Patch("/users/{id}", s.handleAdminUpdateUser)
				r.Delete("/users/{id}", s.handleAdminDeleteUser)
				r.Get("/spaces", s.handleAdminListSpaces)
				r.Delete("/spaces/{id}", s.handleAdminDeleteSpace)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Info()})
}
