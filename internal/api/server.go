// Package api exposes the job and episode surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apresai/newsroom/internal/feed"
	"github.com/apresai/newsroom/internal/orchestrator"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/store"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	store   *store.Store
	orch    *orchestrator.Orchestrator
	baseURL string
	log     *slog.Logger
}

func NewServer(st *store.Store, orch *orchestrator.Orchestrator, baseURL string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, orch: orch, baseURL: strings.TrimRight(baseURL, "/"), log: logger}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/jobs", s.createJob)
	r.Get("/jobs/{jobID}", s.jobStatus)
	r.Post("/jobs/{jobID}/cancel", s.cancelJob)
	r.Post("/jobs/{jobID}/approve", s.approveJob)
	r.Get("/profiles/{profileID}/episodes", s.listEpisodes)
	r.Get("/episodes/{episodeID}/feed.xml", s.episodeFeed)
	r.Get("/episodes/{episodeID}/audio", s.episodeAudio)
	return r
}

type createJobRequest struct {
	ProfileID string        `json:"profileId"`
	Options   store.Options `json:"options"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "profileId is required")
		return
	}

	jobID, err := s.orch.Start(r.Context(), req.ProfileID, req.Options)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if strings.Contains(err.Error(), "max concurrent jobs") {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s.log.ErrorContext(r.Context(), "Create job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job creation failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// statusSnapshot is the wire shape of a job status response.
type statusSnapshot struct {
	JobID           string                `json:"jobId"`
	Status          string                `json:"status"`
	CurrentStage    string                `json:"currentStage"`
	ProgressPercent int                   `json:"progressPercent"`
	StagesCompleted []string              `json:"stagesCompleted"`
	StagesPending   []string              `json:"stagesPending"`
	ActivityLog     []store.ActivityEntry `json:"activityLog"`
	CurrentActivity string                `json:"currentActivity"`
	ErrorMessage    string                `json:"errorMessage,omitempty"`
	EpisodeID       string                `json:"episodeId,omitempty"`
}

func snapshot(job *store.Job) statusSnapshot {
	snap := statusSnapshot{
		JobID:           job.ID,
		Status:          job.State,
		CurrentStage:    job.Stage,
		ProgressPercent: job.Progress,
		StagesCompleted: emptySlice(job.StagesCompleted),
		StagesPending:   emptySlice(job.StagesPending),
		ActivityLog:     job.Activity,
		ErrorMessage:    job.Error,
		EpisodeID:       job.EpisodeID,
	}
	if snap.ActivityLog == nil {
		snap.ActivityLog = []store.ActivityEntry{}
	}
	if n := len(job.Activity); n > 0 {
		snap.CurrentActivity = job.Activity[n-1].Message
	}
	return snap
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orch.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "Load job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load job failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot(job))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	ok, err := s.orch.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "Cancel job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "job is not cancellable in its current state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) approveJob(w http.ResponseWriter, r *http.Request) {
	var edited *script.Script
	var sc script.Script
	switch err := json.NewDecoder(r.Body).Decode(&sc); {
	case errors.Is(err, io.EOF):
		// empty body, approve as-is
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid script body")
		return
	default:
		edited = &sc
	}

	if err := s.orch.Approve(r.Context(), chi.URLParam(r, "jobID"), edited); err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			writeError(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "not waiting-for-review"):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.log.ErrorContext(r.Context(), "Approve job failed", "error", err)
			writeError(w, http.StatusInternalServerError, "approve failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type episodeSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	Status          string    `json:"status"`
	DurationSeconds float64   `json:"durationSeconds"`
	PlayCount       int       `json:"playCount"`
	HasAudio        bool      `json:"hasAudio"`
}

func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.store.ListEpisodes(r.Context(), chi.URLParam(r, "profileID"), 50)
	if err != nil {
		s.log.ErrorContext(r.Context(), "List episodes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list episodes failed")
		return
	}
	out := make([]episodeSummary, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, episodeSummary{
			ID:              ep.ID,
			Title:           ep.Title,
			Date:            ep.Date,
			Status:          ep.Status,
			DurationSeconds: ep.DurationSeconds,
			PlayCount:       ep.PlayCount,
			HasAudio:        ep.AudioPath != "",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) episodeFeed(w http.ResponseWriter, r *http.Request) {
	ep, err := s.store.GetEpisode(r.Context(), chi.URLParam(r, "episodeID"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "Load episode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load episode failed")
		return
	}
	// Only published episodes appear in the feed.
	if ep == nil || ep.Status != store.EpisodeStatusPublished {
		writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	p, err := s.store.GetProfile(r.Context(), ep.ProfileID)
	if err != nil || p == nil {
		writeError(w, http.StatusInternalServerError, "load profile failed")
		return
	}

	body, err := feed.Render(p, []*store.Episode{ep}, s.baseURL)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Render feed failed", "error", err)
		writeError(w, http.StatusInternalServerError, "render feed failed")
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write(body)
}

func (s *Server) episodeAudio(w http.ResponseWriter, r *http.Request) {
	ep, err := s.store.GetEpisode(r.Context(), chi.URLParam(r, "episodeID"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "Load episode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load episode failed")
		return
	}
	if ep == nil || ep.AudioPath == "" {
		writeError(w, http.StatusNotFound, "episode audio not found")
		return
	}
	if err := s.store.IncrementPlayCount(r.Context(), ep.ID); err != nil {
		s.log.WarnContext(r.Context(), "Play count update failed", "episode", ep.ID, "error", err)
	}
	http.ServeFile(w, r, ep.AudioPath)
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
