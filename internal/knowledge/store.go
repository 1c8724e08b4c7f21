package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/zapagent/zapagent/internal/log"
)

// Querier is the minimal pgx surface the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists and searches knowledge chunks in PostgreSQL with pgvector.
type Store struct {
	db       Querier
	embedder Embedder
	chunker  Chunker
	logger   log.Logger
}

// NewStore creates a knowledge store.
func NewStore(db Querier, embedder Embedder, logger log.Logger) *Store {
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
	}
}

// Ingest chunks the document, embeds every chunk and appends the rows to the
// knowledge base. Returns the number of chunks stored.
func (s *Store) Ingest(ctx context.Context, knowledgeID string, doc Document) (int, error) {
	if knowledgeID == "" {
		return 0, ErrEmptyKnowledgeID
	}
	chunks := s.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("knowledge: embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("knowledge: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	now := time.Now().UTC()
	for i, content := range chunks {
		if len(vectors[i]) != VectorDimension {
			return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vectors[i]), VectorDimension)
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO knowledge_chunks (id, knowledge_id, source, content, embedding, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), knowledgeID, doc.Source, content, pgvector.NewVector(vectors[i]), now)
		if err != nil {
			return 0, fmt.Errorf("knowledge: insert chunk: %w", err)
		}
	}

	s.logger.Info("document ingested",
		"knowledge_id", knowledgeID,
		"source", doc.Source,
		"chunks", len(chunks))
	return len(chunks), nil
}

// Query embeds the text and returns the k nearest chunks of the knowledge
// base by cosine distance, newest ingestion first among ties.
func (s *Store) Query(ctx context.Context, knowledgeID, text string, k int) ([]Chunk, error) {
	if knowledgeID == "" {
		return nil, ErrEmptyKnowledgeID
	}
	if strings.TrimSpace(text) == "" || k <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != VectorDimension {
		return nil, fmt.Errorf("%w: query vector", ErrDimensionMismatch)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, knowledge_id, source, content,
		       1 - (embedding <=> $2) AS score,
		       ingested_at
		FROM knowledge_chunks
		WHERE knowledge_id = $1
		ORDER BY embedding <=> $2 ASC, ingested_at DESC
		LIMIT $3`,
		knowledgeID, pgvector.NewVector(vectors[0]), k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.KnowledgeID, &c.Source, &c.Content, &c.Score, &c.IngestedAt); err != nil {
			return nil, fmt.Errorf("knowledge: scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: iterate chunks: %w", err)
	}
	return out, nil
}

// Delete removes every chunk of a knowledge base.
func (s *Store) Delete(ctx context.Context, knowledgeID string) error {
	if knowledgeID == "" {
		return ErrEmptyKnowledgeID
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE knowledge_id = $1`, knowledgeID)
	if err != nil {
		return fmt.Errorf("knowledge: delete chunks: %w", err)
	}
	s.logger.Debug("knowledge base deleted", "knowledge_id", knowledgeID, "rows", tag.RowsAffected())
	return nil
}
