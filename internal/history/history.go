// Package history stores conversation transcripts scoped by connection and
// counterpart.
//
// Appending is the only mutation during normal operation; Clear exists for
// the user-facing clear command and truncates exactly one counterpart's
// transcript. Reads return the most recent N entries in chronological order,
// assistant turns included, so a model context window can be assembled
// directly from the result.
package history

import (
	"context"
	"errors"

	"github.com/zapagent/zapagent/internal/model"
)

// ErrEmptyScope indicates a missing connection ID or counterpart.
var ErrEmptyScope = errors.New("history: connection ID and counterpart are required")

// Store is the conversation history port used by the engine and the command
// router. Implementations must be safe for concurrent use; writers for the
// same (connection, counterpart) pair are serialized by the callers' FIFO
// dispatch, but readers may overlap writers freely.
type Store interface {
	// Append adds one entry to the end of the transcript.
	Append(ctx context.Context, connID, counterpart string, entry model.Entry) error

	// AppendAll adds entries atomically, in order. Either every entry is
	// persisted or none is; a transcript never ends with a partial exchange.
	AppendAll(ctx context.Context, connID, counterpart string, entries []model.Entry) error

	// Window returns up to limit most recent entries, oldest first.
	Window(ctx context.Context, connID, counterpart string, limit int) ([]model.Entry, error)

	// Clear removes the transcript for one counterpart only.
	Clear(ctx context.Context, connID, counterpart string) error

	// Count reports how many entries the transcript holds.
	Count(ctx context.Context, connID, counterpart string) (int64, error)
}

func validateScope(connID, counterpart string) error {
	if connID == "" || counterpart == "" {
		return ErrEmptyScope
	}
	return nil
}
