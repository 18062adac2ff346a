// Package history journals session transitions and uploads in SQLite so the
// console can show what happened across restarts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("history entry not found")

// Entry kinds besides the session kinds.
const (
	KindUpload   = "upload"
	KindMetadata = "metadata"
	KindPackage  = "package"
)

type Entry struct {
	ID          int64
	Kind        string
	Ref         string // session id or model name
	State       string
	Detail      string
	Fingerprint string
	At          time.Time
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA synchronous        = NORMAL;
	PRAGMA temp_store         = MEMORY;

	create table if not exists entries (
		id          integer primary key autoincrement,
		kind        text not null,
		ref         text not null default '',
		state       text not null default '',
		detail      text not null default '',
		fingerprint text not null default '',
		at          integer not null
	);
	create index if not exists entries_kind_at on entries(kind, at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e and returns its id. A zero At is stamped with now.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Kind == "" {
		return 0, errors.New("record history: kind is required")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into entries (kind, ref, state, detail, fingerprint, at) values (?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Ref, e.State, e.Detail, e.Fingerprint, e.At.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("record history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record history: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.RecentKind(ctx, "", limit)
}

// RecentKind is Recent restricted to one kind; an empty kind matches all.
func (s *Store) RecentKind(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, kind, ref, state, detail, fingerprint, at from entries
		where ? = '' or kind = ? order by at desc, id desc limit ?`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, kind, ref, state, detail, fingerprint, at from entries where id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("get history %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get history %d: %w", id, err)
	}
	return e, nil
}

// Last returns the newest entry of a kind.
func (s *Store) Last(ctx context.Context, kind string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, kind, ref, state, detail, fingerprint, at from entries where kind = ? order by at desc, id desc limit 1`, kind)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("last %s: %w", kind, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("last %s: %w", kind, err)
	}
	return e, nil
}

// FindFingerprint returns the newest upload whose fingerprint matches.
func (s *Store) FindFingerprint(ctx context.Context, fp string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, kind, ref, state, detail, fingerprint, at from entries where fingerprint = ? order by at desc, id desc limit 1`, fp)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("find fingerprint: %w", ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("find fingerprint: %w", err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var at int64
	if err := sc.Scan(&e.ID, &e.Kind, &e.Ref, &e.State, &e.Detail, &e.Fingerprint, &at); err != nil {
		return Entry{}, err
	}
	e.At = time.UnixMilli(at)
	return e, nil
}
