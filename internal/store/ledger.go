package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is a SQLite-backed record of inventory backups.
type Ledger struct{ db *sql.DB }

// Backup is one superseded inventory.
type Backup struct {
	ID          int64
	Source      string
	Path        string
	Size        int64
	Hosts       int
	Environment string
	CreatedAt   time.Time
}

//go:embed migrations/*.sql
var migrationFS embed.FS

func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := l.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (l *Ledger) Record(ctx context.Context, b Backup) error {
	if l.db == nil {
		return errors.New("db not initialized")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO backups (source, path, size, hosts, environment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Source, b.Path, b.Size, b.Hosts, b.Environment, b.CreatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

// List returns backups newest first.
func (l *Ledger) List(ctx context.Context) ([]Backup, error) {
	if l.db == nil {
		return nil, errors.New("db not initialized")
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, source, path, size, hosts, environment, created_at FROM backups ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()
	var out []Backup
	for rows.Next() {
		var b Backup
		var ts int64
		if err := rows.Scan(&b.ID, &b.Source, &b.Path, &b.Size, &b.Hosts, &b.Environment, &ts); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		b.CreatedAt = time.Unix(ts, 0)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
