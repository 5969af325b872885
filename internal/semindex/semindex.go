// Package semindex persists donation phrase embeddings in PostgreSQL with
// pgvector, so the semantic NLU stage does not re-embed its corpus on every
// boot. Conversation state stays in memory; only phrase vectors, which are
// pure functions of (model, text), live here.
package semindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Index is a phrase-embedding cache keyed by (model, text). It satisfies the
// semantic stage's vector-cache contract.
//
// All methods are safe for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Index, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("semindex: connect: %w", err)
	}
	idx := &Index{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS phrase_embeddings (
		    model      text        NOT NULL,
		    phrase     text        NOT NULL,
		    embedding  vector      NOT NULL,
		    created_at timestamptz NOT NULL DEFAULT now(),
		    PRIMARY KEY (model, phrase)
		)`
	if _, err := idx.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("semindex: ensure schema: %w", err)
	}
	return nil
}

// Lookup returns the cached vector for (model, text), reporting whether one
// exists.
func (idx *Index) Lookup(ctx context.Context, model, text string) ([]float32, bool, error) {
	const q = `SELECT embedding FROM phrase_embeddings WHERE model = $1 AND phrase = $2`
	var vec pgvector.Vector
	err := idx.pool.QueryRow(ctx, q, model, text).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("semindex: lookup: %w", err)
	}
	return vec.Slice(), true, nil
}

// Store upserts the vector for (model, text).
func (idx *Index) Store(ctx context.Context, model, text string, vec []float32) error {
	const q = `
		INSERT INTO phrase_embeddings (model, phrase, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (model, phrase) DO UPDATE SET
		    embedding  = EXCLUDED.embedding,
		    created_at = now()`
	if _, err := idx.pool.Exec(ctx, q, model, text, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("semindex: store: %w", err)
	}
	return nil
}

// Purge drops every vector of one model, typically after a model upgrade.
func (idx *Index) Purge(ctx context.Context, model string) (int64, error) {
	tag, err := idx.pool.Exec(ctx, `DELETE FROM phrase_embeddings WHERE model = $1`, model)
	if err != nil {
		return 0, fmt.Errorf("semindex: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping probes database connectivity, for readiness checks.
func (idx *Index) Ping(ctx context.Context) error {
	return idx.pool.Ping(ctx)
}

// Close releases the connection pool.
func (idx *Index) Close() {
	idx.pool.Close()
}
