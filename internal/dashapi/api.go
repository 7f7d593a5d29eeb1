// Package dashapi serves the dashboard HTTP surface: incident and alert
// queries, pipeline status, manual update triggers, and the websocket
// upgrade endpoint.
package dashapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/hub"
	"github.com/linnemanlabs/airsight/internal/sched"
	"github.com/linnemanlabs/airsight/internal/store"
)

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	store    *store.Store
	engine   *alert.Engine
	sched    *sched.Scheduler
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// New creates a new API handler.
func New(logger log.Logger, st *store.Store, engine *alert.Engine, sc *sched.Scheduler, h *hub.Hub) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if st == nil || engine == nil || sc == nil || h == nil {
		panic(xerrors.New("store, engine, scheduler, and hub are required"))
	}
	return &API{
		logger: logger,
		store:  st,
		engine: engine,
		sched:  sc,
		hub:    h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard origins are enforced upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/incidents", a.handleListIncidents)
		r.Get("/status", a.handleStatus)
		r.Get("/alerts", a.handleListAlerts)
		r.Post("/alerts/{id}/clear", a.handleClearAlert)
		r.Post("/update", a.handleTriggerUpdate)
	})
	r.Get("/ws", a.handleWebsocket)
}
