// Package pgstore is the Postgres-backed ChunkStore.
//
// Embeddings are stored as float4 arrays and ranked in process. Corpora are
// small enough (hundreds to low thousands of chunks per source) that a
// vector index buys nothing at this scale.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a ChunkStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]types.Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.name, COUNT(c.id)
		FROM sources s
		LEFT JOIN chunks c ON c.source_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []types.Source
	for rows.Next() {
		var src types.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetSource returns one source or store.ErrSourceNotFound.
func (s *Store) GetSource(ctx context.Context, id string) (*types.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT s.id, s.name, COUNT(c.id)
		FROM sources s
		LEFT JOIN chunks c ON c.source_id = s.id
		WHERE s.id = $1
		GROUP BY s.id, s.name
	`, id)

	var src types.Source
	if err := row.Scan(&src.ID, &src.Name, &src.ChunkCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSourceNotFound
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return &src, nil
}

// Search loads the source's chunk vectors and ranks them by cosine
// similarity in process.
func (s *Store) Search(ctx context.Context, sourceID string, query []float32, k int) ([]types.ScoredChunk, error) {
	if _, err := s.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, reference, content, embedding
		FROM chunks
		WHERE source_id = $1
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var scored []types.ScoredChunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Reference, &c.Content, &c.Embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		scored = append(scored, types.ScoredChunk{
			Chunk: c,
			Score: store.Cosine(query, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// UpsertSource creates or replaces a source record.
func (s *Store) UpsertSource(ctx context.Context, source types.Source) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, source.ID, source.Name)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// InsertChunks adds embedded chunks in one batch.
func (s *Store) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, source_id, reference, content, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, c.SourceID, c.Reference, c.Content, c.Embedding)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}
