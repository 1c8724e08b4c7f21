// Package knowledge implements the retrieval subsystem: documents are
// chunked, embedded and stored in PostgreSQL with pgvector; queries return
// the nearest chunks by cosine distance.
//
// Retrieval failures never abort a message run. The engine treats an error
// from Query as "no context available" and proceeds with a warn log.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding width of the knowledge_chunks schema.
// Embedders must produce vectors of exactly this size.
const VectorDimension = 768

var (
	// ErrEmptyKnowledgeID indicates a missing knowledge base identifier.
	ErrEmptyKnowledgeID = errors.New("knowledge: knowledge ID is required")

	// ErrEmptyDocument indicates a document with no text to ingest.
	ErrEmptyDocument = errors.New("knowledge: document has no content")

	// ErrDimensionMismatch indicates the embedder produced vectors of the
	// wrong width for the schema.
	ErrDimensionMismatch = errors.New("knowledge: embedding dimension mismatch")
)

// Embedder turns text into vectors. It is a collaborator port; the host
// wires a concrete embedding backend.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is raw material for ingestion.
type Document struct {
	// Source labels where the text came from (filename, URL, note title).
	Source string
	Text   string
}

// Chunk is one stored piece of a knowledge base, returned by Query with its
// similarity score (1 - cosine distance, higher is closer).
type Chunk struct {
	ID          uuid.UUID
	KnowledgeID string
	Source      string
	Content     string
	Score       float64
	IngestedAt  time.Time
}
