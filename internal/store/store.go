package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/insightlab/analyst/models"
)

// DefaultEmbeddingDimensions indicates the expected length of vectors stored
// in pgvector columns.
const DefaultEmbeddingDimensions = 1536

type Store struct {
	DB *sql.DB
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Source manifest operations. The sources table is the processed-files
// manifest: a source present with status 'ingested' is skipped on
// re-ingestion unless its content hash changed.

func (s *Store) GetSourceByOrigin(ctx context.Context, origin string) (models.Source, error) {
	var src models.Source
	err := s.DB.QueryRowContext(ctx, `
SELECT id, origin, kind, title, content_hash, status, chunk_count, refresh_cron, ingested_at
FROM sources WHERE origin=$1`, origin).Scan(
		&src.ID, &src.Origin, &src.Kind, &src.Title, &src.ContentHash,
		&src.Status, &src.ChunkCount, &src.RefreshCron, &src.IngestedAt)
	if err == sql.ErrNoRows {
		return models.Source{}, models.ErrSourceNotFound
	}
	if err != nil {
		return models.Source{}, err
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, origin, kind, title, content_hash, status, chunk_count, refresh_cron, ingested_at
FROM sources ORDER BY ingested_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Origin, &src.Kind, &src.Title, &src.ContentHash,
			&src.Status, &src.ChunkCount, &src.RefreshCron, &src.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// ListRefreshableSources returns ingested URL sources for the scheduler.
func (s *Store) ListRefreshableSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, origin, kind, title, content_hash, status, chunk_count, refresh_cron, ingested_at
FROM sources WHERE kind='url' AND status='ingested'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Origin, &src.Kind, &src.Title, &src.ContentHash,
			&src.Status, &src.ChunkCount, &src.RefreshCron, &src.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// MarkSourceFailed records a source that produced no usable text.
func (s *Store) MarkSourceFailed(ctx context.Context, origin string, kind models.SourceKind) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO sources (origin, kind, status, ingested_at)
VALUES ($1,$2,'failed',NOW())
ON CONFLICT (origin) DO UPDATE SET status='failed', ingested_at=NOW()`, origin, kind)
	return err
}

// ReplaceSourceChunks upserts the source row and replaces its chunks in a
// single transaction, so the manifest always reflects the chunks actually
// stored. chunks and vectors must be the same length.
func (s *Store) ReplaceSourceChunks(ctx context.Context, src models.Source, chunks []string, vectors [][]float32) (sourceID string, err error) {
	if len(chunks) != len(vectors) {
		return "", fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("no chunks to store for %s", src.Origin)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = tx.QueryRowContext(ctx, `
INSERT INTO sources (origin, kind, title, content_hash, status, chunk_count, refresh_cron, ingested_at)
VALUES ($1,$2,$3,$4,'ingested',$5,$6,NOW())
ON CONFLICT (origin) DO UPDATE SET
  title = EXCLUDED.title,
  content_hash = EXCLUDED.content_hash,
  status = 'ingested',
  chunk_count = EXCLUDED.chunk_count,
  ingested_at = NOW()
RETURNING id`, src.Origin, src.Kind, src.Title, src.ContentHash, len(chunks), src.RefreshCron).Scan(&sourceID)
	if err != nil {
		return "", fmt.Errorf("upsert source: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id=$1`, sourceID); err != nil {
		return "", fmt.Errorf("delete existing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (source_id, ord, content, embedding)
VALUES ($1,$2,$3,$4::vector)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, content := range chunks {
		var literal string
		literal, err = encodeVectorLiteral(vectors[i])
		if err != nil {
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}
		if _, err = stmt.ExecContext(ctx, sourceID, i, content, literal); err != nil {
			return "", fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return sourceID, nil
}

// SearchChunks returns the closest chunks for the supplied vector, optionally
// restricted to a single source origin. Score is cosine similarity.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, topK int, origin string) ([]models.SearchHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 4
	}
	literal, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.source_id, c.ord, s.origin, s.title, c.content, c.embedding <=> $1::vector AS distance
FROM chunks c
JOIN sources s ON s.id = c.source_id
WHERE ($2 = '' OR s.origin = $2)
ORDER BY c.embedding <=> $1::vector
LIMIT $3`, literal, origin, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var (
			hit      models.SearchHit
			sourceID string
			ord      int
			distance float64
		)
		if err := rows.Scan(&sourceID, &ord, &hit.Origin, &hit.Title, &hit.Content, &distance); err != nil {
			return nil, err
		}
		hit.ChunkID = models.ChunkKey(sourceID, ord)
		hit.Score = 1 - distance
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListChunks streams all chunk rows, used to rebuild the in-process BM25
// index at startup.
func (s *Store) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.source_id, s.origin, s.title, c.ord, c.content
FROM chunks c
JOIN sources s ON s.id = c.source_id
ORDER BY s.origin, c.ord`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.SourceID, &ch.Origin, &ch.Title, &ch.Ord, &ch.Content); err != nil {
			return nil, err
		}
		ch.ID = models.ChunkKey(ch.SourceID, ch.Ord)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// TouchSource bumps the manifest timestamp without re-ingesting, used when a
// refresh found identical content.
func (s *Store) TouchSource(ctx context.Context, origin string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sources SET ingested_at=$2 WHERE origin=$1`, origin, at)
	return err
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
