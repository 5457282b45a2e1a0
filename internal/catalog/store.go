// Package catalog manages the movie document index: a PostgreSQL table
// with pgvector embeddings queried by cosine similarity.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// VectorDimension is the embedding width of the movies table.
// text-embedding-004 outputs 768 dimensions; the vector(768) column in
// db/migrations must match.
const VectorDimension = 768

// Store runs vector searches and upserts against the movies table.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on top of an existing connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// NewPool creates a pgx connection pool with pgvector types registered
// on every connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// Search returns up to limit candidates ordered by descending cosine
// score, as ranked by the index itself.
//
// numCandidates is the search breadth and maps to pgvector's
// hnsw.ef_search; it is clamped to at least limit so the invariant
// numCandidates ≥ limit always holds. An empty result is a valid
// outcome, not an error.
func (s *Store) Search(ctx context.Context, embedding []float32, numCandidates, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if numCandidates < limit {
		numCandidates = limit
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning search transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the search breadth to this transaction.
	// The value is validated as an integer; it cannot be bound as a
	// statement parameter.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", numCandidates)); err != nil {
		return nil, fmt.Errorf("setting search breadth: %w", err)
	}

	// Cosine distance d ∈ [0,2]; 1 - d/2 maps it onto a [0,1] score.
	rows, err := tx.Query(ctx, `
		SELECT id,
		       title,
		       COALESCE(NULLIF(fullplot, ''), plot, '') AS synopsis,
		       year,
		       COALESCE(poster, '') AS poster,
		       1 - (embedding <=> $1) / 2 AS score
		FROM movies
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	candidates := make([]Candidate, 0, limit)
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.FullPlot, &c.Year, &c.Poster, &c.Score); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing search transaction: %w", err)
	}

	s.logger.Debug("vector search completed",
		"candidates", len(candidates),
		"breadth", numCandidates,
		"limit", limit,
	)
	return candidates, nil
}

// Upsert inserts or replaces a movie together with its embedding.
func (s *Store) Upsert(ctx context.Context, m Movie, embedding []float32) error {
	if len(embedding) != VectorDimension {
		return fmt.Errorf("embedding for %q has %d dimensions, want %d", m.ID, len(embedding), VectorDimension)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO movies (id, title, year, plot, fullplot, poster, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			plot = EXCLUDED.plot,
			fullplot = EXCLUDED.fullplot,
			poster = EXCLUDED.poster,
			embedding = EXCLUDED.embedding`,
		m.ID, m.Title, m.Year, m.Plot, m.FullPlot, m.Poster, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("upserting movie %q: %w", m.ID, err)
	}

	s.logger.Debug("upserted movie", "id", m.ID, "title", m.Title)
	return nil
}

// Count returns the number of indexed movies.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM movies").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting movies: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("movie count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}
