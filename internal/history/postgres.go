package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// Querier is the minimal pgx surface the store needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so callers choose pooling and transaction boundaries.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store backed by the history_entries table.
// Rows are append-only; Clear issues the only DELETE and is scoped to a
// single counterpart.
type Postgres struct {
	db     Querier
	logger log.Logger
}

// NewPostgres creates a Postgres history store.
func NewPostgres(db Querier, logger log.Logger) *Postgres {
	return &Postgres{db: db, logger: logger.With("component", "history")}
}

func (p *Postgres) Append(ctx context.Context, connID, counterpart string, entry model.Entry) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}

	parts, err := json.Marshal(entry.Parts)
	if err != nil {
		return fmt.Errorf("history: marshal parts: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO history_entries (connection_id, counterpart, role, parts, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		connID, counterpart, string(entry.Role), parts, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: append entry: %w", err)
	}
	return nil
}

func (p *Postgres) AppendAll(ctx context.Context, connID, counterpart string, entries []model.Entry) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// One multi-row INSERT so the whole batch commits as a single statement.
	var (
		sb   strings.Builder
		args = make([]any, 0, len(entries)*5)
	)
	sb.WriteString("INSERT INTO history_entries (connection_id, counterpart, role, parts, created_at) VALUES ")
	for i, entry := range entries {
		parts, err := json.Marshal(entry.Parts)
		if err != nil {
			return fmt.Errorf("history: marshal parts: %w", err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5)
		args = append(args, connID, counterpart, string(entry.Role), parts, entry.CreatedAt)
	}

	if _, err := p.db.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("history: append entries: %w", err)
	}
	return nil
}

func (p *Postgres) Window(ctx context.Context, connID, counterpart string, limit int) ([]model.Entry, error) {
	if err := validateScope(connID, counterpart); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	// Newest N selected descending, then reversed to chronological order.
	rows, err := p.db.Query(ctx, `
		SELECT role, parts, created_at
		FROM history_entries
		WHERE connection_id = $1 AND counterpart = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		connID, counterpart, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query window: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var (
			role  string
			parts []byte
			e     model.Entry
		)
		if err := rows.Scan(&role, &parts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		if err := json.Unmarshal(parts, &e.Parts); err != nil {
			return nil, fmt.Errorf("history: unmarshal parts: %w", err)
		}
		e.Role = model.Role(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate window: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (p *Postgres) Clear(ctx context.Context, connID, counterpart string) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}

	tag, err := p.db.Exec(ctx, `
		DELETE FROM history_entries
		WHERE connection_id = $1 AND counterpart = $2`,
		connID, counterpart)
	if err != nil {
		return fmt.Errorf("history: clear transcript: %w", err)
	}
	p.logger.Debug("transcript cleared",
		"connection_id", connID,
		"counterpart", counterpart,
		"rows", tag.RowsAffected())
	return nil
}

func (p *Postgres) Count(ctx context.Context, connID, counterpart string) (int64, error) {
	if err := validateScope(connID, counterpart); err != nil {
		return 0, err
	}

	var n int64
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM history_entries
		WHERE connection_id = $1 AND counterpart = $2`,
		connID, counterpart).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: count entries: %w", err)
	}
	return n, nil
}
