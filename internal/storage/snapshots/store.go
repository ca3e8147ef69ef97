// Package snapshots persists profiles, raw position snapshots and detected
// changes in SQLite.
package snapshots

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

// TimestampLayout is fixed-width so that stored timestamps sort as text.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DayLayout is the calendar-day format used by day filters.
const DayLayout = "2006-01-02"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is a SQLite-backed snapshot store.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// DayCount is the number of changes a profile recorded on one day.
type DayCount struct {
	ProfileID int64
	Day       string
	Count     int
}

// Open opens (creating if needed) the database at path. All timestamps are
// written in loc.
func Open(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite create schema")
	}

	return &Store{db: db, loc: loc}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Location returns the timezone timestamps are stored in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Day formats t as the stored calendar day in the store's timezone.
func (s *Store) Day(t time.Time) string {
	return t.In(s.loc).Format(DayLayout)
}

func (s *Store) formatTime(t time.Time) string {
	return t.In(s.loc).Format(TimestampLayout)
}

func (s *Store) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, v)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse stored timestamp %q", v)
	}
	return t.In(s.loc), nil
}

// SyncProfiles makes sure every slug has a profile row and marks profiles not
// listed as inactive. History of inactive profiles is kept.
func (s *Store) SyncProfiles(ctx context.Context, slugs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin sync profiles")
	}
	defer func() { _ = tx.Rollback() }()

	now := s.formatTime(time.Now())
	for _, slug := range slugs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (slug, name, is_active, added_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(slug) DO UPDATE SET is_active = 1`, slug, slug, now); err != nil {
			return errors.Wrapf(err, "upsert profile %s", slug)
		}
	}

	if len(slugs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(slugs)), ",")
		args := make([]interface{}, 0, len(slugs))
		for _, slug := range slugs {
			args = append(args, slug)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET is_active = 0 WHERE slug NOT IN (`+placeholders+`)`, args...); err != nil {
			return errors.Wrap(err, "deactivate profiles")
		}
	}

	return errors.Wrap(tx.Commit(), "commit sync profiles")
}

// ProfileBySlug returns the profile with slug or ErrNotFound.
func (s *Store) ProfileBySlug(ctx context.Context, slug string) (domain.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, is_active, added_at FROM profiles WHERE slug = ?`, slug)
	return s.scanProfile(row)
}

// ListProfiles returns profiles ordered by slug.
func (s *Store) ListProfiles(ctx context.Context, activeOnly bool) ([]domain.Profile, error) {
	query := `SELECT id, slug, name, is_active, added_at FROM profiles`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY slug`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query profiles")
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := s.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, errors.Wrap(rows.Err(), "iterate profiles")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanProfile(row scanner) (domain.Profile, error) {
	var (
		p       domain.Profile
		active  int
		addedAt string
	)
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &active, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, ErrNotFound
		}
		return domain.Profile{}, errors.Wrap(err, "scan profile")
	}
	p.IsActive = active == 1

	ts, err := s.parseTime(addedAt)
	if err != nil {
		return domain.Profile{}, err
	}
	p.AddedAt = ts

	return p, nil
}
