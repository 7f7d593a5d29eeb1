// Package pgstate provides a PostgreSQL implementation of store.State.
package pgstate

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/store"
)

var tracer = otel.Tracer("github.com/linnemanlabs/airsight/internal/store/pgstate")

//go:embed schema.sql
var schema string

// State persists pipeline snapshots in PostgreSQL.
type State struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready State.
func New(ctx context.Context, pool *pgxpool.Pool) (*State, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &State{pool: pool}, nil
}

// Load reads the most recent snapshot. ok=false when no snapshot was ever
// saved.
func (s *State) Load(ctx context.Context) (*store.Snapshot, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstate.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	snap := &store.Snapshot{}

	err := s.pool.QueryRow(ctx,
		`SELECT generated_at, last_cycle_at FROM pipeline_meta WHERE id = 1`,
	).Scan(&snap.GeneratedAt, &snap.LastCycleAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("load meta: %w", err)
	}

	if snap.Incidents, err = loadDocs[incident.Incident](ctx, s.pool,
		`SELECT doc FROM incidents`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("load incidents: %w", err)
	}
	if snap.Alerts, err = loadDocs[alert.Record](ctx, s.pool,
		`SELECT doc FROM alerts`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("load alerts: %w", err)
	}

	return snap, true, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *State) Save(ctx context.Context, snap *store.Snapshot) error {
	ctx, span := tracer.Start(ctx, "pgstate.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
		attribute.Int("airsight.snapshot.incidents", len(snap.Incidents)),
		attribute.Int("airsight.snapshot.alerts", len(snap.Alerts)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx,
		`INSERT INTO pipeline_meta (id, generated_at, last_cycle_at)
		 VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET
			generated_at  = EXCLUDED.generated_at,
			last_cycle_at = EXCLUDED.last_cycle_at`,
		snap.GeneratedAt, snap.LastCycleAt,
	); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}

	if _, err := tx.Exec(ctx, `TRUNCATE incidents`); err != nil {
		return fmt.Errorf("truncate incidents: %w", err)
	}
	for _, in := range snap.Incidents {
		doc, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal incident %s: %w", in.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO incidents (id, status, first_seen_at, last_updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5)`,
			in.ID, string(in.Classification.Status), in.FirstSeenAt, in.LastUpdatedAt, doc,
		); err != nil {
			return fmt.Errorf("insert incident %s: %w", in.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, `TRUNCATE alerts`); err != nil {
		return fmt.Errorf("truncate alerts: %w", err)
	}
	for _, rec := range snap.Alerts {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", rec.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO alerts (id, status, created_at, doc) VALUES ($1, $2, $3, $4)`,
			rec.ID, string(rec.Status), rec.CreatedAt, doc,
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func loadDocs[T any](ctx context.Context, pool *pgxpool.Pool, query string) ([]*T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("unmarshal doc: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
