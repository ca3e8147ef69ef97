package snapshots

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

const snapshotColumns = `id, profile_id, timestamp, raw_data, created_at_source`

// SaveSnapshot stores a raw snapshot and returns its id.
func (s *Store) SaveSnapshot(ctx context.Context, profileID int64, ts time.Time, raw []byte, createdAtSource string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (profile_id, timestamp, raw_data, created_at_source) VALUES (?, ?, ?, ?)`,
		profileID, s.formatTime(ts), string(raw), createdAtSource)
	if err != nil {
		return 0, errors.Wrap(err, "insert snapshot")
	}
	return res.LastInsertId()
}

// Snapshot returns the snapshot with id or ErrNotFound.
func (s *Store) Snapshot(ctx context.Context, id int64) (domain.StoredSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	return s.scanSnapshot(row)
}

// LastSnapshot returns the most recently inserted snapshot of a profile, or nil.
func (s *Store) LastSnapshot(ctx context.Context, profileID int64) (*domain.StoredSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE profile_id = ? ORDER BY id DESC LIMIT 1`, profileID)
	snap, err := s.scanSnapshot(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns every snapshot of a profile in insertion order.
func (s *Store) ListSnapshots(ctx context.Context, profileID int64) ([]domain.StoredSnapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE profile_id = ? ORDER BY id ASC`, profileID)
}

// SnapshotsBefore returns the snapshots of a profile inserted before snapshotID, oldest first.
func (s *Store) SnapshotsBefore(ctx context.Context, profileID, snapshotID int64) ([]domain.StoredSnapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE profile_id = ? AND id < ? ORDER BY id ASC`,
		profileID, snapshotID)
}

// SnapshotsOnDay returns the snapshots of a profile taken on day (YYYY-MM-DD), oldest first.
func (s *Store) SnapshotsOnDay(ctx context.Context, profileID int64, day string) ([]domain.StoredSnapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE profile_id = ? AND substr(timestamp, 1, 10) = ? ORDER BY id ASC`,
		profileID, day)
}

// UpsertLatest replaces the realtime snapshot of a profile.
func (s *Store) UpsertLatest(ctx context.Context, profileID int64, ts time.Time, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO latest_snapshots (profile_id, raw_data, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			raw_data = excluded.raw_data,
			timestamp = excluded.timestamp`,
		profileID, string(raw), s.formatTime(ts))
	return errors.Wrap(err, "upsert latest snapshot")
}

// Latest returns the realtime snapshot of a profile, or nil.
func (s *Store) Latest(ctx context.Context, profileID int64) (*domain.StoredSnapshot, error) {
	var (
		raw string
		ts  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT raw_data, timestamp FROM latest_snapshots WHERE profile_id = ?`, profileID).Scan(&raw, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query latest snapshot")
	}

	t, err := s.parseTime(ts)
	if err != nil {
		return nil, err
	}
	return &domain.StoredSnapshot{ProfileID: profileID, Timestamp: t, Raw: []byte(raw)}, nil
}

// LastUpdated returns the newest realtime snapshot time across all profiles, or nil.
func (s *Store) LastUpdated(ctx context.Context) (*time.Time, error) {
	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM latest_snapshots`).Scan(&ts); err != nil {
		return nil, errors.Wrap(err, "query last update")
	}
	if !ts.Valid {
		return nil, nil
	}
	t, err := s.parseTime(ts.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]domain.StoredSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query snapshots")
	}
	defer rows.Close()

	var out []domain.StoredSnapshot
	for rows.Next() {
		snap, err := s.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, errors.Wrap(rows.Err(), "iterate snapshots")
}

func (s *Store) scanSnapshot(row scanner) (domain.StoredSnapshot, error) {
	var (
		snap domain.StoredSnapshot
		ts   string
		raw  string
	)
	if err := row.Scan(&snap.ID, &snap.ProfileID, &ts, &raw, &snap.CreatedAtSource); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StoredSnapshot{}, ErrNotFound
		}
		return domain.StoredSnapshot{}, errors.Wrap(err, "scan snapshot")
	}

	t, err := s.parseTime(ts)
	if err != nil {
		return domain.StoredSnapshot{}, err
	}
	snap.Timestamp = t
	snap.Raw = []byte(raw)

	return snap, nil
}
