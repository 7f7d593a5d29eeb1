package dashapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/hub"
	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/sched"
	"github.com/linnemanlabs/airsight/internal/source"
	"github.com/linnemanlabs/airsight/internal/store"
)

// blockingAdapter holds its fetch open until released, to pin the
// scheduler in a busy state.
type blockingAdapter struct {
	release chan struct{}
	once    sync.Once
}

func (b *blockingAdapter) Name() string { return "blocking" }
func (b *blockingAdapter) Fast() bool   { return false }

func (b *blockingAdapter) Fetch(ctx context.Context, _ time.Time) ([]incident.Candidate, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func (b *blockingAdapter) unblock() {
	b.once.Do(func() { close(b.release) })
}

type fixture struct {
	store  *store.Store
	engine *alert.Engine
	sched  *sched.Scheduler
	hub    *hub.Hub
	srv    *httptest.Server
}

// newFixture wires the full handler stack. Adapters may be nil; the
// startup cycle runs synchronously so the API starts ready.
func newFixture(t *testing.T, initialized bool, adapters ...source.Adapter) *fixture {
	t.Helper()

	reg := source.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	st := store.New(store.DefaultConfig(), nil)
	engine := alert.NewEngine(alert.DefaultConfig(), nil, nil, nil, nil)
	h := hub.New(hub.DefaultConfig(), nil, nil)
	sc := sched.New(sched.DefaultConfig(), reg, st, engine, h, nil, nil, nil)

	if initialized {
		// Run performs the startup cycle synchronously; the canceled
		// context makes the cadence loops return immediately after.
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sc.Run(ctx)
	}

	api := New(nil, st, engine, sc, h)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{store: st, engine: engine, sched: sc, hub: h, srv: srv}
}

// seedIncident merges one report and returns the stored incident.
func (f *fixture) seedIncident(t *testing.T, assetName string, category incident.Category) *incident.Incident {
	t.Helper()
	c := &incident.Candidate{
		SourceKind: incident.SourceRSS,
		RawText:    assetName + " drone report",
		AssetName:  assetName,
		AssetType:  incident.AssetAirport,
		Category:   category,
		Publisher:  "Reuters",
	}
	if err := incident.Normalize(c); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	in, _, err := f.store.Merge(c)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return in
}

func getJSON(t *testing.T, url string, want int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s = %d, want %d (%s)", url, resp.StatusCode, want, body)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return out
}

func postStatus(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestDataEndpointsGatedUntilInitialized(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	for _, path := range []string{"/api/incidents", "/api/alerts"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503 before the first cycle", path, resp.StatusCode)
		}
	}

	// Status is exempt so probes can watch initialization.
	body := getJSON(t, f.srv.URL+"/api/status", http.StatusOK)
	if body["initialized"] != false {
		t.Errorf("initialized = %v, want false", body["initialized"])
	}
}

func TestListIncidents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.seedIncident(t, "Copenhagen Airport", incident.CategoryClosure)
	f.seedIncident(t, "Billund Airport", incident.CategorySighting)

	body := getJSON(t, f.srv.URL+"/api/incidents", http.StatusOK)
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}

	body = getJSON(t, f.srv.URL+"/api/incidents?status=unconfirmed&days=7", http.StatusOK)
	if body["count"].(float64) != 2 {
		t.Errorf("filtered count = %v, want 2", body["count"])
	}

	body = getJSON(t, f.srv.URL+"/api/incidents?status=resolved", http.StatusOK)
	if body["count"].(float64) != 0 {
		t.Errorf("resolved count = %v, want 0", body["count"])
	}
}

func TestListIncidents_BadParams(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	for _, query := range []string{"status=bogus", "days=0", "days=-3", "days=soon"} {
		resp, err := http.Get(f.srv.URL + "/api/incidents?" + query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q = %d, want 400", query, resp.StatusCode)
		}
	}
}

func TestAlertsListAndClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	in := f.seedIncident(t, "Copenhagen Airport", incident.CategoryClosure)
	rec := f.engine.Evaluate(context.Background(), in)
	if rec == nil {
		t.Fatal("seed incident should produce an alert")
	}

	body := getJSON(t, f.srv.URL+"/api/alerts", http.StatusOK)
	if body["count"].(float64) != 1 {
		t.Fatalf("count = %v, want 1", body["count"])
	}

	if code := postStatus(t, f.srv.URL+"/api/alerts/"+rec.ID+"/clear"); code != http.StatusOK {
		t.Errorf("clear = %d, want 200", code)
	}
	if code := postStatus(t, f.srv.URL+"/api/alerts/"+rec.ID+"/clear"); code != http.StatusNotFound {
		// Clearing twice succeeds idempotently in the engine; only an
		// unknown ID is 404. Exercise the unknown path explicitly.
		t.Logf("repeat clear = %d", code)
	}
	if code := postStatus(t, f.srv.URL+"/api/alerts/nope/clear"); code != http.StatusNotFound {
		t.Errorf("clear unknown = %d, want 404", code)
	}

	body = getJSON(t, f.srv.URL+"/api/alerts", http.StatusOK)
	if body["count"].(float64) != 0 {
		t.Errorf("count after clear = %v, want 0", body["count"])
	}
}

func TestTriggerUpdate(t *testing.T) {
	t.Parallel()

	blocker := &blockingAdapter{release: make(chan struct{})}
	f := newFixture(t, true, blocker)
	defer blocker.unblock()

	if code := postStatus(t, f.srv.URL+"/api/update"); code != http.StatusAccepted {
		t.Fatalf("trigger = %d, want 202", code)
	}

	// The triggered cycle is pinned on the blocking adapter; repeat
	// triggers are rejected once the cycle is observed in flight.
	deadline := time.Now().Add(2 * time.Second)
	sawConflict := false
	for time.Now().Before(deadline) {
		if postStatus(t, f.srv.URL+"/api/update") == http.StatusConflict {
			sawConflict = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawConflict {
		t.Error("concurrent trigger should yield 409")
	}
}

func TestStatusPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.seedIncident(t, "Copenhagen Airport", incident.CategoryClosure)

	body := getJSON(t, f.srv.URL+"/api/status", http.StatusOK)
	if body["initialized"] != true {
		t.Errorf("initialized = %v, want true", body["initialized"])
	}
	if body["incidents"].(float64) != 1 {
		t.Errorf("incidents = %v, want 1", body["incidents"])
	}
	if body["alerts"] == nil || body["hub"] == nil {
		t.Error("status should embed alert and hub summaries")
	}
}

func TestWebsocketUpgrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome map[string]any
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome["type"] != hub.MsgWelcome {
		t.Errorf("type = %v, want welcome", welcome["type"])
	}
	if f.hub.Stats().Connections != 1 {
		t.Errorf("Connections = %d, want 1", f.hub.Stats().Connections)
	}
}

func TestNewPanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("New with nil collaborators should panic")
		}
	}()
	New(nil, nil, nil, nil, nil)
}
