package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type observed struct {
	method  string
	route   string
	outcome string
	dur     time.Duration
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (r *recordingObserver) ObserveQuery(_ context.Context, method, route, outcome string, dur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observed{method, route, outcome, dur})
}

func (r *recordingObserver) last(t *testing.T) observed {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		t.Fatal("no queries observed")
	}
	return r.seen[len(r.seen)-1]
}

func runQuery(tr pgx.QueryTracer, ctx context.Context, err error) {
	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: err})
}

func TestQueryObserver_ReceivesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	SetQueryObserver(obs)
	defer SetQueryObserver(nil)

	tr := wrapQueryTracer(nil)

	runQuery(tr, WithHTTPMethod(context.Background(), "GET"), nil)
	got := obs.last(t)
	if got.method != "GET" || got.outcome != "ok" {
		t.Errorf("observed %+v, want method GET outcome ok", got)
	}
	if got.route != "unknown" {
		t.Errorf("route = %q, want unknown outside a chi request", got.route)
	}
	if got.dur <= 0 {
		t.Error("duration should be positive")
	}

	runQuery(tr, context.Background(), errors.New("boom"))
	got = obs.last(t)
	if got.method != "UNKNOWN" || got.outcome != "error" {
		t.Errorf("observed %+v, want method UNKNOWN outcome error", got)
	}
}

func TestQueryObserver_NilSafe(t *testing.T) {
	SetQueryObserver(nil)

	// No observer registered: tracing must still complete.
	tr := wrapQueryTracer(nil)
	runQuery(tr, context.Background(), nil)
}

func TestWithHTTPMethod_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := WithHTTPMethod(ctx, ""); got != ctx {
		t.Error("empty method should not allocate a new context")
	}
	if m := httpMethodFromContext(WithHTTPMethod(ctx, "POST")); m != "POST" {
		t.Errorf("method = %q, want POST", m)
	}
}

func TestQueryObserverFunc(t *testing.T) {
	t.Parallel()

	var called bool
	f := QueryObserverFunc(func(context.Context, string, string, string, time.Duration) {
		called = true
	})
	f.ObserveQuery(context.Background(), "GET", "/api/incidents", "ok", time.Millisecond)
	if !called {
		t.Error("adapter should invoke the wrapped function")
	}
}
