// Package httpapi exposes the controller over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/craxelfn/fleetpilot/internal/application"
	"github.com/craxelfn/fleetpilot/internal/domain"
)

const maxRequestBytes = 1 << 20

// Server routes API requests to the application services.
type Server struct {
	Members   *application.MemberService
	Releases  *application.ReleaseService
	Rollouts  *application.RolloutService
	Decisions domain.DecisionRepository
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Releases block until terminal; the budget covers a full liveness
	// wait plus validation retries.
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Post("/", s.handleRegisterMember)
			r.Get("/", s.handleListMembers)
			r.Get("/{id}", s.handleGetMember)
			r.Delete("/{id}", s.handleDeregisterMember)
		})

		r.Route("/releases", func(r chi.Router) {
			r.Post("/", s.handleDeploy)
			r.Get("/", s.handleListReleases)
			r.Get("/{id}", s.handleGetRelease)
			r.Post("/{id}/cancel", s.handleCancelRelease)
		})

		r.Post("/rollouts", s.handleStartRollout)

		r.Route("/capacity", func(r chi.Router) {
			r.Get("/latest", s.handleLatestDecision)
			r.Get("/decisions", s.handleListDecisions)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type registerMemberRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Labels     map[string]string `json:"labels"`
	Properties map[string]string `json:"properties"`
}

func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req registerMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	member := domain.MemberInfo{
		ID:         domain.MemberID(req.ID),
		Name:       req.Name,
		Labels:     req.Labels,
		Properties: req.Properties,
	}
	if err := s.Members.Register(r.Context(), member); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.Members.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.Members.Get(r.Context(), domain.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, member)
}

func (s *Server) handleDeregisterMember(w http.ResponseWriter, r *http.Request) {
	if err := s.Members.Deregister(r.Context(), domain.MemberID(chi.URLParam(r, "id"))); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deployRequest struct {
	MemberID      string `json:"memberId"`
	TargetVersion string `json:"targetVersion"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rel, err := s.Releases.Deploy(r.Context(), application.DeployInput{
		MemberID:      domain.MemberID(req.MemberID),
		TargetVersion: req.TargetVersion,
	})
	if err != nil && rel.ID == "" {
		respondDomainError(w, err)
		return
	}
	// A terminal failure still produced a release record; return it with
	// the failure classification alongside.
	payload := map[string]any{"release": releaseJSON(rel)}
	if err != nil {
		payload["error"] = err.Error()
	}
	respondJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.Releases.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(releases))
	for _, rel := range releases {
		out = append(out, releaseJSON(rel))
	}
	respondJSON(w, http.StatusOK, map[string]any{"releases": out})
}

func (s *Server) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Releases.Get(r.Context(), domain.ReleaseID(chi.URLParam(r, "id")))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, releaseJSON(rel))
}

func (s *Server) handleCancelRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Releases.Cancel(r.Context(), domain.ReleaseID(chi.URLParam(r, "id")))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, releaseJSON(rel))
}

type rolloutRequest struct {
	TargetVersion     string                       `json:"targetVersion"`
	PlacementStrategy domain.PlacementStrategySpec `json:"placementStrategy"`
	RolloutStrategy   *domain.RolloutStrategySpec  `json:"rolloutStrategy,omitempty"`
}

func (s *Server) handleStartRollout(w http.ResponseWriter, r *http.Request) {
	var req rolloutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.Rollouts.Start(r.Context(), application.StartRolloutInput{
		TargetVersion:     req.TargetVersion,
		PlacementStrategy: req.PlacementStrategy,
		RolloutStrategy:   req.RolloutStrategy,
	})
	if err != nil && len(result.Releases) == 0 {
		respondDomainError(w, err)
		return
	}
	releases := make([]map[string]any, 0, len(result.Releases))
	for _, rel := range result.Releases {
		releases = append(releases, releaseJSON(rel))
	}
	payload := map[string]any{"releases": releases}
	if err != nil {
		payload["error"] = err.Error()
	}
	respondJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleLatestDecision(w http.ResponseWriter, r *http.Request) {
	decision, err := s.Decisions.Latest(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	decisions, err := s.Decisions.List(r.Context(), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func releaseJSON(rel domain.Release) map[string]any {
	out := map[string]any{
		"id":            rel.ID,
		"memberId":      rel.MemberID,
		"targetVersion": rel.TargetVersion,
		"phase":         rel.Phase,
		"attempts":      rel.Attempts,
		"startedAt":     rel.StartedAt,
	}
	if rel.Reason != "" {
		out["reason"] = rel.Reason
	}
	if rel.CancelRequested {
		out["cancelRequested"] = true
	}
	if !rel.EndedAt.IsZero() {
		out["endedAt"] = rel.EndedAt
	}
	return out
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
