package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/shape"
)

// ExposureStore abstracts DB queries for testability.
type ExposureStore interface {
	ListExposures(ctx context.Context) ([]*exposureRow, error)
	ListScalars(ctx context.Context) (map[string]string, error)
}

type exposureRow struct {
	Name        string
	Operation   string
	Title       sql.NullString
	Description sql.NullString
	Arguments   string // JSONB array as string
	Fixed       string // JSONB object as string
	Selection   sql.NullString
	Annotations string
	Result      sql.NullString
}

// sqlExposureStore is the real implementation using *sql.DB.
type sqlExposureStore struct {
	db *sql.DB
}

func (s *sqlExposureStore) ListExposures(ctx context.Context) ([]*exposureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, operation, title, description, arguments::text,
		       fixed::text, selection, annotations::text, result::text
		FROM tool_exposures
		WHERE enabled
		ORDER BY position, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*exposureRow
	for rows.Next() {
		var r exposureRow
		if err := rows.Scan(
			&r.Name, &r.Operation, &r.Title, &r.Description, &r.Arguments,
			&r.Fixed, &r.Selection, &r.Annotations, &r.Result,
		); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *sqlExposureStore) ListScalars(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scalar_name, kind FROM tool_scalars`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, err
		}
		out[name] = kind
	}
	return out, rows.Err()
}

// PostgresManifestSource loads the tools manifest from the tool_exposures
// and tool_scalars tables.
type PostgresManifestSource struct {
	store  ExposureStore
	logger *zap.Logger
}

// NewPostgresManifestSource returns a source reading from db.
func NewPostgresManifestSource(db *sql.DB, logger *zap.Logger) *PostgresManifestSource {
	return &PostgresManifestSource{store: &sqlExposureStore{db: db}, logger: logger}
}

// newPostgresManifestSourceWithStore creates a source with a custom store (for testing).
func newPostgresManifestSourceWithStore(store ExposureStore, logger *zap.Logger) *PostgresManifestSource {
	return &PostgresManifestSource{store: store, logger: logger}
}

// Load reads every enabled exposure.
func (s *PostgresManifestSource) Load(ctx context.Context) (*Manifest, error) {
	rows, err := s.store.ListExposures(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load: exposures: %w", err)
	}
	scalars, err := s.store.ListScalars(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load: scalars: %w", err)
	}

	m := &Manifest{Scalars: scalars}
	for _, row := range rows {
		spec, err := parseExposureRow(row)
		if err != nil {
			return nil, err
		}
		m.Tools = append(m.Tools, *spec)
	}
	s.logger.Info("loaded tool exposures from postgres", zap.Int("tools", len(m.Tools)))
	return m, nil
}

func parseExposureRow(row *exposureRow) (*ToolSpec, error) {
	spec := &ToolSpec{
		Name:      row.Name,
		Operation: row.Operation,
	}
	if row.Title.Valid {
		spec.Title = row.Title.String
	}
	if row.Description.Valid {
		spec.Description = row.Description.String
	}
	if row.Selection.Valid {
		spec.Selection = row.Selection.String
	}

	// Parse arguments (JSONB array)
	if row.Arguments != "" && row.Arguments != "[]" {
		if err := json.Unmarshal([]byte(row.Arguments), &spec.Arguments); err != nil {
			return nil, fmt.Errorf("parseExposureRow %s: arguments: %w", row.Name, err)
		}
	}

	// Parse fixed (JSONB object)
	if row.Fixed != "" && row.Fixed != "{}" {
		if err := json.Unmarshal([]byte(row.Fixed), &spec.Fixed); err != nil {
			return nil, fmt.Errorf("parseExposureRow %s: fixed: %w", row.Name, err)
		}
	}

	// Parse annotations
	if row.Annotations != "" && row.Annotations != "{}" {
		if err := json.Unmarshal([]byte(row.Annotations), &spec.Annotations); err != nil {
			return nil, fmt.Errorf("parseExposureRow %s: annotations: %w", row.Name, err)
		}
	}

	// Parse result shape
	if row.Result.Valid && row.Result.String != "" && row.Result.String != "null" {
		var rs shape.Spec
		if err := json.Unmarshal([]byte(row.Result.String), &rs); err != nil {
			return nil, fmt.Errorf("parseExposureRow %s: result: %w", row.Name, err)
		}
		spec.Result = &rs
	}

	return spec, nil
}
