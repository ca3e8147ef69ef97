package snapshots

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

const changeColumns = `id, profile_id, snapshot_id, timestamp, diff_summary`

// RecordChange stores a detected change pointing at snapshotID and returns its id.
func (s *Store) RecordChange(ctx context.Context, profileID, snapshotID int64, ts time.Time, summary string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO position_changes (profile_id, snapshot_id, timestamp, diff_summary) VALUES (?, ?, ?, ?)`,
		profileID, snapshotID, s.formatTime(ts), summary)
	if err != nil {
		return 0, errors.Wrap(err, "insert position change")
	}
	return res.LastInsertId()
}

// Change returns the change with id or ErrNotFound.
func (s *Store) Change(ctx context.Context, id int64) (domain.Change, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+changeColumns+` FROM position_changes WHERE id = ?`, id)
	return s.scanChange(row)
}

// ChangesOnDay returns the changes of a profile on day, oldest first.
func (s *Store) ChangesOnDay(ctx context.Context, profileID int64, day string) ([]domain.Change, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+changeColumns+` FROM position_changes
		 WHERE profile_id = ? AND substr(timestamp, 1, 10) = ? ORDER BY timestamp ASC, id ASC`,
		profileID, day)
	if err != nil {
		return nil, errors.Wrap(err, "query position changes")
	}
	defer rows.Close()

	var out []domain.Change
	for rows.Next() {
		c, err := s.scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate position changes")
}

// ChangeDates returns the most recent distinct days with at least one change, newest first.
func (s *Store) ChangeDates(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT substr(timestamp, 1, 10) AS day FROM position_changes ORDER BY day DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query change dates")
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, errors.Wrap(err, "scan change date")
		}
		days = append(days, day)
	}
	return days, errors.Wrap(rows.Err(), "iterate change dates")
}

// ChangeCounts returns per-profile change counts for every day on or after since.
func (s *Store) ChangeCounts(ctx context.Context, since string) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, substr(timestamp, 1, 10) AS day, COUNT(*) FROM position_changes
		 WHERE substr(timestamp, 1, 10) >= ? GROUP BY profile_id, day`, since)
	if err != nil {
		return nil, errors.Wrap(err, "query change counts")
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.ProfileID, &c.Day, &c.Count); err != nil {
			return nil, errors.Wrap(err, "scan change count")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate change counts")
}

// ChangeIDsBySnapshot maps snapshot ids of a profile to the change recorded for them.
func (s *Store) ChangeIDsBySnapshot(ctx context.Context, profileID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id, id FROM position_changes WHERE profile_id = ?`, profileID)
	if err != nil {
		return nil, errors.Wrap(err, "query change ids")
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var snapshotID, changeID int64
		if err := rows.Scan(&snapshotID, &changeID); err != nil {
			return nil, errors.Wrap(err, "scan change id")
		}
		out[snapshotID] = changeID
	}
	return out, errors.Wrap(rows.Err(), "iterate change ids")
}

// DeleteDay removes every change and snapshot timestamped on day and returns
// how many of each were deleted.
func (s *Store) DeleteDay(ctx context.Context, day string) (int64, int64, error) {
	return s.deleteWhere(ctx, `substr(timestamp, 1, 10) = ?`, day)
}

// DeleteBefore removes every change and snapshot older than cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	return s.deleteWhere(ctx, `timestamp < ?`, s.formatTime(cutoff))
}

func (s *Store) deleteWhere(ctx context.Context, cond string, arg interface{}) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "begin delete")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM position_changes WHERE `+cond+` OR snapshot_id IN (SELECT id FROM snapshots WHERE `+cond+`)`,
		arg, arg)
	if err != nil {
		return 0, 0, errors.Wrap(err, "delete position changes")
	}
	deletedChanges, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE `+cond+` AND id NOT IN (SELECT snapshot_id FROM position_changes)`, arg)
	if err != nil {
		return 0, 0, errors.Wrap(err, "delete snapshots")
	}
	deletedSnapshots, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, errors.Wrap(err, "commit delete")
	}
	return deletedChanges, deletedSnapshots, nil
}

func (s *Store) scanChange(row scanner) (domain.Change, error) {
	var (
		c  domain.Change
		ts string
	)
	if err := row.Scan(&c.ID, &c.ProfileID, &c.SnapshotID, &ts, &c.DiffSummary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Change{}, ErrNotFound
		}
		return domain.Change{}, errors.Wrap(err, "scan position change")
	}

	t, err := s.parseTime(ts)
	if err != nil {
		return domain.Change{}, err
	}
	c.Timestamp = t

	return c, nil
}
