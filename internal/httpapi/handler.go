// Package httpapi exposes the admin and ingest surface of the matcher.
//
// Routes:
//
//	GET  /health               → liveness
//	POST /listings             → ingest a batch of scraped listings
//	POST /runs                 → trigger a matching run (?wait=true to block)
//	GET  /runs                 → recent runs
//	GET  /runs/{id}            → one run record
//	POST /notifications/sweep  → promote due deferred notifications
//	GET  /notifications/pending → pending drafts for the delivery worker
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"autoradar/matcher-service/internal/ingest"
	"autoradar/matcher-service/internal/model"
	"autoradar/matcher-service/internal/runner"
	"autoradar/matcher-service/internal/store"
)

// RunTrigger starts matching runs.
type RunTrigger interface {
	Run(ctx context.Context, opts runner.Options) (*model.MatchRun, error)
}

// Ingestor accepts scraped listing batches.
type Ingestor interface {
	ProcessBatch(ctx context.Context, raws []model.RawListing) (ingest.Stats, error)
}

// Sweeper promotes due deferred notifications.
type Sweeper interface {
	PromoteDeferred(ctx context.Context, now time.Time) (int, error)
}

// RunReader reads MatchRun records.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*model.MatchRun, error)
	RecentRuns(ctx context.Context, limit int) ([]model.MatchRun, error)
}

// NotificationReader serves the delivery collaborator's polling path.
type NotificationReader interface {
	PendingNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}

// Handler holds shared dependencies.
type Handler struct {
	runner  RunTrigger
	ingest  Ingestor
	sweeper Sweeper
	runs    RunReader
	notifs  NotificationReader
}

// NewHandler returns a configured Handler.
func NewHandler(r RunTrigger, ing Ingestor, sw Sweeper, runs RunReader, notifs NotificationReader) *Handler {
	return &Handler{runner: r, ingest: ing, sweeper: sw, runs: runs, notifs: notifs}
}

// Routes returns the chi router for all matcher endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Post("/listings", h.ingestListings)
	r.Post("/runs", h.triggerRun)
	r.Get("/runs", h.recentRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Post("/notifications/sweep", h.sweep)
	r.Get("/notifications/pending", h.pendingNotifications)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "ok", "service": "matcher-service"})
}

func (h *Handler) ingestListings(w http.ResponseWriter, r *http.Request) {
	var raws []model.RawListing
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		jsonError(w, "body must be a JSON array of listings", http.StatusBadRequest)
		return
	}
	if len(raws) == 0 {
		jsonError(w, "empty batch", http.StatusBadRequest)
		return
	}
	stats, err := h.ingest.ProcessBatch(r.Context(), raws)
	if err != nil {
		log.Printf("[http] ingest batch error: %v", err)
		jsonError(w, "ingest failed", http.StatusInternalServerError)
		return
	}
	jsonOK(w, stats)
}

type triggerRunRequest struct {
	Since       *time.Time `json:"since,omitempty"`
	MaxListings int        `json:"maxListings,omitempty"`
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	var body triggerRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	opts := runner.Options{Since: body.Since, MaxListings: body.MaxListings}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		run, err := h.runner.Run(r.Context(), opts)
		if err != nil && run == nil {
			log.Printf("[http] triggerRun error: %v", err)
			jsonError(w, "run failed to start", http.StatusInternalServerError)
			return
		}
		jsonOK(w, runResponse(run))
		return
	}

	// Detach from the request context so closing the connection does not
	// cancel the run.
	go func() {
		if _, err := h.runner.Run(context.Background(), opts); err != nil {
			log.Printf("[http] background run error: %v", err)
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "run not found", http.StatusNotFound)
			return
		}
		log.Printf("[http] getRun error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, runResponse(run))
}

func (h *Handler) recentRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		log.Printf("[http] recentRuns error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(runs))
	for i := range runs {
		out = append(out, runResponse(&runs[i]))
	}
	jsonOK(w, out)
}

func (h *Handler) pendingNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pending, err := h.notifs.PendingNotifications(r.Context(), limit)
	if err != nil {
		log.Printf("[http] pendingNotifications error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(pending))
	for i := range pending {
		n := &pending[i]
		out = append(out, map[string]any{
			"id":        n.ID,
			"userId":    n.UserID,
			"alertId":   n.AlertID,
			"listingId": n.ListingID,
			"title":     n.Title,
			"message":   n.Message,
			"content":   n.Content,
			"priority":  n.Priority,
			"createdAt": n.CreatedAt,
		})
	}
	jsonOK(w, out)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.sweeper.PromoteDeferred(r.Context(), time.Now().UTC())
	if err != nil {
		log.Printf("[http] sweep error: %v", err)
		jsonError(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]int{"promoted": promoted})
}

func runResponse(run *model.MatchRun) map[string]any {
	return map[string]any{
		"id":                   run.ID,
		"status":               run.Status,
		"startedAt":            run.StartedAt,
		"completedAt":          run.CompletedAt,
		"alertsProcessed":      run.AlertsProcessed,
		"listingsChecked":      run.ListingsChecked,
		"matchesFound":         run.MatchesFound,
		"notificationsCreated": run.NotificationsCreated,
		"error":                run.Error,
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
