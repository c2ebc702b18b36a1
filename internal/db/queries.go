package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// StoredPattern is one row of the patterns table. Times are Unix seconds.
type StoredPattern struct {
	ID              string
	Width           int64
	Height          int64
	ThreadPalette   string
	ColorCount      int64
	Document        []byte
	DocumentSize    int64
	DeleteTokenHash string
	ViewCount       int64
	CreatedAt       int64
	ExpiresAt       int64
}

const createPattern = `
INSERT INTO patterns (
    id, width, height, thread_palette, color_count,
    document, document_size, delete_token_hash, created_at, expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreatePatternParams struct {
	ID              string
	Width           int64
	Height          int64
	ThreadPalette   string
	ColorCount      int64
	Document        []byte
	DocumentSize    int64
	DeleteTokenHash string
	CreatedAt       int64
	ExpiresAt       int64
}

func (q *Queries) CreatePattern(ctx context.Context, arg CreatePatternParams) error {
	_, err := q.db.ExecContext(ctx, createPattern,
		arg.ID,
		arg.Width,
		arg.Height,
		arg.ThreadPalette,
		arg.ColorCount,
		arg.Document,
		arg.DocumentSize,
		arg.DeleteTokenHash,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const getPattern = `
SELECT id, width, height, thread_palette, color_count,
       document, document_size, delete_token_hash, view_count, created_at, expires_at
FROM patterns
WHERE id = ? AND expires_at > ?
`

// GetPattern returns sql.ErrNoRows for unknown or expired patterns.
func (q *Queries) GetPattern(ctx context.Context, id string, now int64) (StoredPattern, error) {
	row := q.db.QueryRowContext(ctx, getPattern, id, now)
	var p StoredPattern
	err := row.Scan(
		&p.ID,
		&p.Width,
		&p.Height,
		&p.ThreadPalette,
		&p.ColorCount,
		&p.Document,
		&p.DocumentSize,
		&p.DeleteTokenHash,
		&p.ViewCount,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	return p, err
}

const incrementPatternViews = `
UPDATE patterns SET view_count = view_count + 1 WHERE id = ?
`

func (q *Queries) IncrementPatternViews(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, incrementPatternViews, id)
	return err
}

const deletePattern = `
DELETE FROM patterns WHERE id = ?
`

func (q *Queries) DeletePattern(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePattern, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteExpiredPatterns = `
DELETE FROM patterns WHERE expires_at <= ?
`

func (q *Queries) DeleteExpiredPatterns(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredPatterns, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countPatterns = `
SELECT COUNT(*) FROM patterns
`

func (q *Queries) CountPatterns(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPatterns).Scan(&n)
	return n, err
}
