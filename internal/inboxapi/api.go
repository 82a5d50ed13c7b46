// Package inboxapi exposes the triage service over HTTP.
package inboxapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/docbox/internal/triage"
)

// TriageService defines the business operations inboxapi needs.
type TriageService interface {
	Ingest(ctx context.Context, req *triage.IngestRequest) (*triage.Message, error)
	Get(ctx context.Context, id string) (*triage.Message, bool, error)
	List(ctx context.Context, f triage.Filter) ([]*triage.Message, error)
	GetGrid(ctx context.Context, ownerRole string) (*triage.Grid, error)
	Correct(ctx context.Context, id string, newZone triage.Zone, actorRole string) (*triage.Message, error)
	Escalate(ctx context.Context, id, actorRole string) (*triage.Message, error)
	SetStatus(ctx context.Context, id string, change *triage.StatusChange) (*triage.Message, error)
	Events(ctx context.Context, id string) ([]*triage.AuditEvent, error)
	GetStats(ctx context.Context) (*triage.Stats, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", a.handleIngest)
		r.Get("/messages", a.handleListMessages)
		r.Get("/messages/{id}", a.handleGetMessage)
		r.Get("/messages/{id}/events", a.handleListEvents)
		r.Post("/messages/{id}/correct", a.handleCorrect)
		r.Post("/messages/{id}/escalate", a.handleEscalate)
		r.Post("/messages/{id}/status", a.handleSetStatus)
		r.Get("/grid", a.handleGrid)
		r.Get("/stats", a.handleStats)
	})
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error(ctx, err, "failed to encode response")
	}
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognized
// is a generic 500 with no details leaked.
func (a *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case triage.IsValidation(err):
		a.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, triage.ErrNotFound):
		a.writeJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, triage.ErrInvalidState):
		a.writeJSON(ctx, w, http.StatusConflict, map[string]string{"error": "invalid state"})
	default:
		a.logger.Error(ctx, err, "request failed")
		a.writeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
