package dashapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/store"
)

// handleListIncidents serves the stored incident list, optionally
// narrowed by status and a trailing-days window.
func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}

	var opts store.ListOptions
	if s := r.URL.Query().Get("status"); s != "" {
		st := incident.Status(s)
		switch st {
		case incident.StatusUnconfirmed, incident.StatusActive, incident.StatusResolved:
			opts.Status = st
		default:
			http.Error(w, `{"error":"invalid status"}`, http.StatusBadRequest)
			return
		}
	}
	if d := r.URL.Query().Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days <= 0 {
			http.Error(w, `{"error":"invalid days"}`, http.StatusBadRequest)
			return
		}
		opts.Since = time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	}

	incidents := a.store.List(opts)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("airsight.incidents.count", len(incidents)))

	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// handleStatus serves the pipeline summary. It is available before the
// first cycle completes so probes can observe initialization.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Status())
}

// handleListAlerts serves non-cleared alerts, newest first.
func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}

	alerts := a.engine.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleClearAlert acknowledges an alert so it stops counting as active.
func (a *API) handleClearAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("airsight.alert.id", id))

	if !a.engine.Clear(id) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	a.logger.Info(r.Context(), "alert cleared", "alert_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": id})
}

// handleTriggerUpdate starts an out-of-cadence ingestion cycle. A cycle
// already in flight yields 409 rather than queueing another.
func (a *API) handleTriggerUpdate(w http.ResponseWriter, r *http.Request) {
	if !a.sched.TriggerUpdate(r.Context()) {
		http.Error(w, `{"error":"update already in progress"}`, http.StatusConflict)
		return
	}

	a.logger.Info(r.Context(), "manual update triggered")
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

// handleWebsocket upgrades the connection and hands it to the hub.
func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		a.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}
	a.hub.Add(r.Context(), conn)
}

// ready gates data endpoints until the startup cycle has completed.
func (a *API) ready(w http.ResponseWriter) bool {
	if a.sched.Initialized() {
		return true
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"error":  "initializing",
		"detail": "first ingestion cycle has not completed yet",
	})
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
