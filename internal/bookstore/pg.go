package bookstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bookforge/internal/memory"
)

type pgBackend struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func newPGBackend(dsn string) (*pgBackend, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &pgBackend{db: db}, nil
}

func (p *pgBackend) close() error { return p.db.Close() }

func (p *pgBackend) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS book_context (
	book_id    TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS unit_versions (
	id         BIGSERIAL PRIMARY KEY,
	book_id    TEXT NOT NULL,
	unit       INT  NOT NULL,
	stage      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS unit_versions_lookup
	ON unit_versions (book_id, unit, id DESC);
`
		_, p.schemaErr = p.db.ExecContext(ctx, ddl)
	})
	return p.schemaErr
}

func (p *pgBackend) saveContext(ctx context.Context, bookID string, snap memory.Snapshot) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO book_context (book_id, snapshot, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (book_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`,
		bookID, b)
	return err
}

func (p *pgBackend) loadContext(ctx context.Context, bookID string) (memory.Snapshot, bool, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return memory.Snapshot{}, false, err
	}
	var b []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT snapshot FROM book_context WHERE book_id = $1`, bookID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Snapshot{}, false, nil
	}
	if err != nil {
		return memory.Snapshot{}, false, err
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return memory.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (p *pgBackend) saveVersion(ctx context.Context, bookID string, unit int, stage, body string) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO unit_versions (book_id, unit, stage, body) VALUES ($1, $2, $3, $4)`,
		bookID, unit, stage, body)
	return err
}

func (p *pgBackend) latestVersion(ctx context.Context, bookID string, unit int) (UnitVersion, bool, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return UnitVersion{}, false, err
	}
	var v UnitVersion
	err := p.db.QueryRowContext(ctx, `
SELECT book_id, unit, id, stage, body, created_at
FROM unit_versions
WHERE book_id = $1 AND unit = $2
ORDER BY id DESC
LIMIT 1`, bookID, unit).Scan(&v.BookID, &v.Unit, &v.Seq, &v.Stage, &v.Body, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return UnitVersion{}, false, nil
	}
	if err != nil {
		return UnitVersion{}, false, err
	}
	return v, true, nil
}
