// Package hub is the real-time fan-out layer: it owns dashboard websocket
// connections, their topic subscriptions and filters, liveness probing,
// and broadcast delivery.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/incident"
)

// Config controls hub behavior.
type Config struct {
	// PingInterval is the liveness probe cadence. A connection that has
	// not answered the previous ping when the next tick fires is
	// terminated.
	PingInterval time.Duration
}

// DefaultConfig returns the production hub defaults.
func DefaultConfig() Config {
	return Config{PingInterval: 30 * time.Second}
}

// Stats summarizes hub state for the status API.
type Stats struct {
	Connections int            `json:"connections"`
	Topics      map[string]int `json:"topics"`
}

// Hub maintains the connection registry. Connection lifecycle events and
// broadcasts run concurrently; the mutex is the safety boundary for the
// client set.
type Hub struct {
	cfg     Config
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time

	// statusFn supplies the payload for client "status" requests and is
	// wired by main to the scheduler's status summary.
	statusFn func() any

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// New creates a Hub. A nil metrics disables instrumentation.
func New(cfg Config, logger log.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// SetStatusFunc wires the provider for "status" socket requests.
func (h *Hub) SetStatusFunc(fn func() any) {
	h.statusFn = fn
}

// Run drives the liveness loop until the context is canceled, then shuts
// the hub down.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Shutdown(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			h.pingAll(ctx)
		}
	}
}

// Add registers a connection, default-subscribes it to {all}, sends the
// welcome acknowledgment, and starts its pumps. Returns the connection ID.
func (h *Hub) Add(ctx context.Context, conn Conn) string {
	c := &client{
		id:         ulid.Make().String(),
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		state:      stateConnecting,
		subs:       map[string]bool{TopicAll: true},
		lastPongAt: h.now(),
	}

	conn.SetPongHandler(func(string) error {
		h.mu.Lock()
		c.lastPongAt = h.now()
		c.awaitingPong = false
		h.mu.Unlock()
		return nil
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return ""
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	go c.writePump()
	go h.readLoop(ctx, c)

	h.sendTo(c, MsgWelcome, map[string]any{
		"client_id":     c.id,
		"subscriptions": []string{TopicAll},
	})

	h.mu.Lock()
	c.state = stateOpen
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
	h.logger.Info(ctx, "client connected", "client_id", c.id)
	return c.id
}

// readLoop consumes client messages until the connection drops. Malformed
// messages are dropped and logged; the protocol has no error reply.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.drop(ctx, c, "connection lost")

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Warn(ctx, "dropping malformed client message", "client_id", c.id, "error", err.Error())
			continue
		}

		switch msg.Type {
		case "subscribe":
			h.subscribe(c, msg.Topics)
		case "filter":
			h.setFilters(c, &Filters{
				MinSeverity: msg.MinSeverity,
				Status:      msg.Status,
				Region:      msg.Region,
			})
		case "ping":
			h.sendTo(c, MsgPong, nil)
		case "status":
			var payload any
			if h.statusFn != nil {
				payload = h.statusFn()
			}
			h.sendTo(c, MsgStatus, map[string]any{"status": payload})
		default:
			h.logger.Warn(ctx, "dropping unknown client message type", "client_id", c.id, "type", msg.Type)
		}
	}
}

// subscribe replaces the client's subscription set and acknowledges.
func (h *Hub) subscribe(c *client, topics []string) {
	if len(topics) == 0 {
		topics = []string{TopicAll}
	}
	h.mu.Lock()
	c.subs = make(map[string]bool, len(topics))
	for _, t := range topics {
		c.subs[t] = true
	}
	h.mu.Unlock()

	h.sendTo(c, MsgSubscribed, map[string]any{"topics": topics})
}

// setFilters replaces the client's filter predicate and acknowledges.
func (h *Hub) setFilters(c *client, f *Filters) {
	h.mu.Lock()
	c.filters = f
	h.mu.Unlock()

	h.sendTo(c, MsgFiltersUpdated, map[string]any{"filters": f})
}

// sendTo marshals and enqueues one message for one client. A full buffer
// drops the client: a consumer that cannot keep up must reconnect.
func (h *Hub) sendTo(c *client, msgType string, payload map[string]any) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = msgType
	body["timestamp"] = stamp(h.now())

	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Error(context.Background(), err, "marshal server message", "msg_type", msgType)
		return
	}

	// Enqueue under the lock so a concurrent drop cannot close the send
	// channel mid-send.
	h.mu.Lock()
	if c.state == stateClosed {
		h.mu.Unlock()
		return
	}
	queued := c.enqueue(raw)
	h.mu.Unlock()

	if !queued {
		h.drop(context.Background(), c, "send buffer full")
		return
	}
	if h.metrics != nil {
		h.metrics.MessagesSent.WithLabelValues(msgType).Inc()
	}
}

// BroadcastNewIncidents fans a batch of new incidents out to incident
// subscribers. Filtering is per-item; a connection whose filter empties
// the batch receives nothing.
func (h *Hub) BroadcastNewIncidents(ctx context.Context, incidents []*incident.Incident) {
	h.broadcastIncidentBatch(ctx, MsgNewIncidents, TopicIncidents, incidents)
}

// BroadcastUpdate fans the incidents changed by a cycle out to incident
// subscribers, with the same per-item filtering as new-incident batches.
func (h *Hub) BroadcastUpdate(ctx context.Context, incidents []*incident.Incident) {
	h.broadcastIncidentBatch(ctx, MsgUpdate, TopicIncidents, incidents)
}

func (h *Hub) broadcastIncidentBatch(_ context.Context, msgType, topic string, incidents []*incident.Incident) {
	for _, c := range h.snapshot() {
		h.mu.RLock()
		ok := c.state == stateOpen && c.subscribedTo(topic)
		filters := c.filters
		h.mu.RUnlock()
		if !ok {
			continue
		}

		batch := incidents
		if filters != nil {
			batch = make([]*incident.Incident, 0, len(incidents))
			for _, in := range incidents {
				if filters.MatchIncident(in) {
					batch = append(batch, in)
				}
			}
		}
		// No empty-batch noise.
		if len(batch) == 0 {
			continue
		}

		h.sendTo(c, msgType, map[string]any{
			"incidents": batch,
			"count":     len(batch),
		})
	}
}

// BroadcastAlert fans an alert out to alert subscribers, honoring each
// connection's severity floor.
func (h *Hub) BroadcastAlert(_ context.Context, rec *alert.Record) {
	for _, c := range h.snapshot() {
		h.mu.RLock()
		ok := c.state == stateOpen && c.subscribedTo(TopicAlerts)
		filters := c.filters
		h.mu.RUnlock()
		if !ok || !filters.MatchSeverity(rec.Severity) {
			continue
		}
		h.sendTo(c, MsgAlert, map[string]any{"alert": rec})
	}
}

// BroadcastSourceUpdate reports one adapter's cycle outcome to stats
// subscribers.
func (h *Hub) BroadcastSourceUpdate(_ context.Context, source string, candidates int, fetchErr error) {
	payload := map[string]any{
		"source":     source,
		"candidates": candidates,
		"ok":         fetchErr == nil,
	}
	if fetchErr != nil {
		payload["error"] = fetchErr.Error()
	}
	h.broadcastTopic(TopicStats, MsgSourceUpdate, payload)
}

// BroadcastStatistics pushes aggregate pipeline statistics to stats
// subscribers.
func (h *Hub) BroadcastStatistics(_ context.Context, stats any) {
	h.broadcastTopic(TopicStats, MsgStatistics, map[string]any{"statistics": stats})
}

func (h *Hub) broadcastTopic(topic, msgType string, payload map[string]any) {
	for _, c := range h.snapshot() {
		h.mu.RLock()
		ok := c.state == stateOpen && c.subscribedTo(topic)
		h.mu.RUnlock()
		if !ok {
			continue
		}
		h.sendTo(c, msgType, payload)
	}
}

// pingAll probes every open connection. A connection still awaiting the
// previous pong is forcibly terminated; this bounds resource usage from
// half-open sockets without client cooperation.
func (h *Hub) pingAll(ctx context.Context) {
	for _, c := range h.snapshot() {
		h.mu.Lock()
		if c.state != stateOpen {
			h.mu.Unlock()
			continue
		}
		if c.awaitingPong {
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.Reaped.Inc()
			}
			h.drop(ctx, c, "liveness timeout")
			continue
		}
		c.awaitingPong = true
		h.mu.Unlock()

		if err := c.ping(); err != nil {
			h.drop(ctx, c, "ping failed")
		}
	}
}

// drop removes a client and tears its connection down. Idempotent.
func (h *Hub) drop(ctx context.Context, c *client, reason string) {
	h.mu.Lock()
	if c.state == stateClosed {
		h.mu.Unlock()
		return
	}
	c.state = stateClosed
	delete(h.clients, c.id)
	close(c.send)
	close(c.done)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	h.logger.Info(ctx, "client disconnected", "client_id", c.id, "reason", reason)
}

// Shutdown broadcasts a shutdown notice, then closes every connection
// deterministically. No connection is abandoned mid-message: the notice
// goes through each client's ordered send queue before the close frame.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.snapshot() {
		h.mu.Lock()
		if c.state == stateOpen {
			c.state = stateClosing
		}
		h.mu.Unlock()
		h.sendTo(c, MsgShutdown, map[string]any{"reason": "server shutting down"})
	}
	for _, c := range h.snapshot() {
		h.drop(ctx, c, "shutdown")
	}
	h.logger.Info(ctx, "hub shut down")
}

// Stats summarizes the connection set.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		Connections: len(h.clients),
		Topics:      make(map[string]int),
	}
	for _, c := range h.clients {
		for topic := range c.subs {
			st.Topics[topic]++
		}
	}
	return st
}

// snapshot copies the client list so broadcast iteration never holds the
// lock across sends.
func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}
