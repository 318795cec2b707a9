// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres drivers wrap it with their connection setup.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/typhoon/pkg/storage"
)

// Dialect selects the bind parameter style.
type Dialect int

const (
	// SQLite uses "?" placeholders.
	SQLite Dialect = iota

	// Postgres uses "$n" placeholders.
	Postgres
)

const schema = `CREATE TABLE IF NOT EXISTS relayed_turns (
	id            TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	prompt        TEXT NOT NULL,
	content       TEXT NOT NULL,
	tokens        INTEGER NOT NULL,
	token_rate    DOUBLE PRECISION NOT NULL,
	events        INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	status        TEXT NOT NULL,
	source        TEXT NOT NULL,
	error         TEXT NOT NULL,
	started_at    BIGINT NOT NULL,
	completed_at  BIGINT NOT NULL
)`

const indexStartedAt = `CREATE INDEX IF NOT EXISTS relayed_turns_started_at ON relayed_turns (started_at)`

const columns = `id, model, message_count, prompt, content, tokens, token_rate, events, skipped, status, source, error, started_at, completed_at`

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	d := &Driver{DB: db, dialect: dialect}
	for _, stmt := range []string{schema, indexStartedAt} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return d, nil
}

// rebind rewrites "?" placeholders for the driver's dialect.
func (d *Driver) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *Driver) Put(ctx context.Context, turn *storage.Turn) error {
	if turn == nil {
		return storage.ErrNilTurn
	}

	query := d.rebind(`INSERT INTO relayed_turns (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := d.DB.ExecContext(ctx, query,
		turn.ID,
		turn.Model,
		turn.MessageCount,
		turn.Prompt,
		turn.Content,
		turn.Tokens,
		turn.TokenRate,
		turn.Events,
		turn.Skipped,
		string(turn.Status),
		string(turn.Source),
		turn.Error,
		turn.StartedAt.UnixMilli(),
		turn.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn %s: %w", turn.ID, err)
	}
	return nil
}

func (d *Driver) Get(ctx context.Context, id string) (*storage.Turn, error) {
	row := d.DB.QueryRowContext(ctx, d.rebind(`SELECT `+columns+` FROM relayed_turns WHERE id = ?`), id)
	turn, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get turn %s: %w", id, err)
	}
	return turn, nil
}

func (d *Driver) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	query := `SELECT ` + columns + ` FROM relayed_turns ORDER BY started_at DESC, id`
	var args []any
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := d.DB.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*storage.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(s scanner) (*storage.Turn, error) {
	var (
		t                    storage.Turn
		status, source       string
		startedMs, completed int64
	)
	err := s.Scan(
		&t.ID,
		&t.Model,
		&t.MessageCount,
		&t.Prompt,
		&t.Content,
		&t.Tokens,
		&t.TokenRate,
		&t.Events,
		&t.Skipped,
		&status,
		&source,
		&t.Error,
		&startedMs,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	t.Status = storage.TurnStatus(status)
	t.Source = storage.TurnSource(source)
	t.StartedAt = time.UnixMilli(startedMs).UTC()
	t.CompletedAt = time.UnixMilli(completed).UTC()
	return &t, nil
}
