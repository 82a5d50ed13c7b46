package inboxapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/docbox/internal/authmw"
	"github.com/linnemanlabs/docbox/internal/triage"
)

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req triage.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	m, err := a.svc.Ingest(r.Context(), &req)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("docbox.message.id", m.ID),
		attribute.String("docbox.message.zone", string(m.Zone)),
	)

	a.writeJSON(r.Context(), w, http.StatusCreated, m)
}

func (a *API) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("docbox.message.id", id))

	m, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	if !ok {
		a.writeJSON(r.Context(), w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.writeJSON(r.Context(), w, http.StatusOK, m)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	var f triage.Filter
	if z := r.URL.Query().Get("zone"); z != "" {
		zone := triage.Zone(z)
		if !zone.Valid() {
			a.writeJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "unknown zone"})
			return
		}
		f.Zone = zone
	}
	if lc := r.URL.Query().Get("lifecycle"); lc != "" {
		f.Lifecycles = []triage.Lifecycle{triage.Lifecycle(lc)}
	}
	f.OwnerRole = r.URL.Query().Get("owner")

	msgs, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	if msgs == nil {
		msgs = []*triage.Message{}
	}
	a.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	evs, err := a.svc.Events(r.Context(), id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	if evs == nil {
		evs = []*triage.AuditEvent{}
	}
	a.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"events": evs})
}

type correctRequest struct {
	NewZone triage.Zone `json:"new_zone"`
}

func (a *API) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req correctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	m, err := a.svc.Correct(r.Context(), id, req.NewZone, authmw.RoleFromContext(r.Context()))
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeJSON(r.Context(), w, http.StatusOK, m)
}

func (a *API) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := a.svc.Escalate(r.Context(), id, authmw.RoleFromContext(r.Context()))
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("docbox.message.id", id))

	a.writeJSON(r.Context(), w, http.StatusOK, m)
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var change triage.StatusChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		a.writeJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	m, err := a.svc.SetStatus(r.Context(), id, &change)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeJSON(r.Context(), w, http.StatusOK, m)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.GetStats(r.Context())
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeJSON(r.Context(), w, http.StatusOK, st)
}
