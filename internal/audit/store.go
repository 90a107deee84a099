// Package audit persists one record per redaction run in SQLite. Records
// hold run metadata only — counts, timings, flags — never document content,
// so the pipeline's no-text-persistence rule holds.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veil-io/veil/internal/entity"
	veilotel "github.com/veil-io/veil/internal/otel"
	"github.com/veil-io/veil/internal/pipeline"
)

var tracer = veilotel.Tracer("github.com/veil-io/veil/internal/audit")

// Store persists run records in SQLite.
type Store struct {
	db *sql.DB
}

// Record is the audit entry for a single redaction run.
type Record struct {
	ID               string              `json:"id"`
	Timestamp        time.Time           `json:"timestamp"`
	Category         string              `json:"category"`
	DocumentLength   int                 `json:"document_length"`
	SegmentCount     int                 `json:"segment_count"`
	DegradedSegments int                 `json:"degraded_segments"`
	EntityCount      int                 `json:"entity_count"`
	ByType           map[entity.Type]int `json:"by_type"`
	Degraded         bool                `json:"degraded"`
	ElapsedMs        int64               `json:"elapsed_ms"`
}

// NewStore opens (or creates) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		category TEXT NOT NULL,
		document_length INTEGER NOT NULL,
		segment_count INTEGER NOT NULL,
		degraded_segments INTEGER NOT NULL,
		entity_count INTEGER NOT NULL,
		by_type TEXT NOT NULL,
		degraded INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun writes an audit record for a finished pipeline run and returns
// the generated run ID.
func (s *Store) RecordRun(ctx context.Context, doc entity.Document, result *pipeline.Result) (string, error) {
	ctx, span := tracer.Start(ctx, "audit.record_run")
	defer span.End()

	rec := Record{
		ID:               "run_" + uuid.New().String()[:12],
		Timestamp:        time.Now().UTC(),
		Category:         doc.Category,
		DocumentLength:   doc.Len(),
		SegmentCount:     result.Stats.SegmentCount,
		DegradedSegments: result.Stats.DegradedSegments,
		EntityCount:      len(result.Entities),
		ByType:           result.Stats.ByType,
		Degraded:         result.Degraded,
		ElapsedMs:        result.Stats.ElapsedMs,
	}

	byType, err := json.Marshal(rec.ByType)
	if err != nil {
		return "", fmt.Errorf("marshalling type counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, timestamp, category, document_length, segment_count,
			degraded_segments, entity_count, by_type, degraded, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.Format(time.RFC3339Nano), rec.Category,
		rec.DocumentLength, rec.SegmentCount, rec.DegradedSegments,
		rec.EntityCount, string(byType), boolToInt(rec.Degraded), rec.ElapsedMs,
	)
	if err != nil {
		return "", fmt.Errorf("inserting audit record: %w", err)
	}

	span.SetAttributes(attribute.String("audit.run_id", rec.ID))
	return rec.ID, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, category, document_length, segment_count,
			degraded_segments, entity_count, by_type, degraded, elapsed_ms
		FROM runs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			ts        string
			byType    string
			degradedN int
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Category, &rec.DocumentLength,
			&rec.SegmentCount, &rec.DegradedSegments, &rec.EntityCount,
			&byType, &degradedN, &rec.ElapsedMs); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(byType), &rec.ByType); err != nil {
			return nil, fmt.Errorf("unmarshalling type counts: %w", err)
		}
		rec.Degraded = degradedN != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
