package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/thv-confd/internal/config"
)

// Querier is the subset of *pgxpool.Pool used by the postgres source
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// postgresSource runs a query on every fetch and exposes the rows as {"rows": [...]}
type postgresSource struct {
	cfg   *config.PostgresConfig
	query string

	mu      sync.Mutex
	querier Querier
	pool    *pgxpool.Pool
}

// NewPostgresSource creates a postgres source. A nil querier opens a pool on the first fetch.
func NewPostgresSource(cfg *config.PostgresConfig, querier Querier) (Source, error) {
	if cfg == nil || cfg.Query == "" {
		return nil, fmt.Errorf("postgres query cannot be empty")
	}
	if querier == nil && cfg.Host == "" {
		return nil, fmt.Errorf("postgres host cannot be empty")
	}
	return &postgresSource{cfg: cfg, query: cfg.Query, querier: querier}, nil
}

func (*postgresSource) Type() string {
	return config.SourceTypePostgres
}

func (s *postgresSource) Fetch(ctx context.Context) (map[string]any, error) {
	querier, err := s.connect(ctx)
	if err != nil {
		return nil, fetchError(config.SourceTypePostgres, err)
	}

	rows, err := querier.Query(ctx, s.query)
	if err != nil {
		return nil, fetchError(config.SourceTypePostgres, fmt.Errorf("query failed: %w", err))
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fetchError(config.SourceTypePostgres, fmt.Errorf("failed to read rows: %w", err))
	}

	list := make([]any, len(records))
	for i, record := range records {
		row := make(map[string]any, len(record))
		for column, value := range record {
			row[column] = Normalize(postgresValue(value))
		}
		list[i] = row
	}
	return map[string]any{"rows": list}, nil
}

// Close releases the connection pool opened by Fetch
func (s *postgresSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.querier = nil
	}
	return nil
}

func (s *postgresSource) connect(ctx context.Context) (Querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.querier != nil {
		return s.querier, nil
	}

	connString, err := s.cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s.pool = pool
	s.querier = pool
	return pool, nil
}

// postgresValue converts pgx representations without a plain Go equivalent
func postgresValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
