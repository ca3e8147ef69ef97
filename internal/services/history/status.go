package history

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Status describes whether the poller is keeping the realtime snapshots fresh.
type Status struct {
	Running            bool       `json:"running"`
	MarketOpen         bool       `json:"market_open"`
	LastUpdated        *time.Time `json:"last_updated"`
	SecondsSinceUpdate *float64   `json:"time_since_update"`
	Text               string     `json:"status_text"`
}

// Status reports the poller as running when the market is open and a realtime
// snapshot was written within the stale-after window.
func (s *Service) Status(ctx context.Context) (Status, error) {
	last, err := s.store.LastUpdated(ctx)
	if err != nil {
		return Status{}, errors.Wrap(err, "load last update")
	}

	now := s.now()
	st := Status{LastUpdated: last}
	if s.market != nil {
		st.MarketOpen = s.market.IsOpen(now)
	}

	switch {
	case !st.MarketOpen:
		st.Text = "Market Closed - Scraper Paused"
	case last == nil:
		st.Text = "No data yet - Scraper may be starting"
	default:
		since := now.Sub(*last)
		secs := since.Seconds()
		st.SecondsSinceUpdate = &secs
		if since <= s.staleAfter {
			st.Running = true
			st.Text = "Running"
		} else {
			st.Text = fmt.Sprintf("Stuck or Stopped (Last update %d mins ago)", int(since.Minutes()))
		}
	}

	return st, nil
}

// DeleteResult counts the rows removed by DeleteDay.
type DeleteResult struct {
	Day              string `json:"day"`
	ChangesDeleted   int64  `json:"changes_deleted"`
	SnapshotsDeleted int64  `json:"snapshots_deleted"`
}

// DeleteDay removes every change and snapshot of day. Realtime snapshots are kept.
func (s *Service) DeleteDay(ctx context.Context, day string) (DeleteResult, error) {
	if _, err := s.ParseDay(day); err != nil {
		return DeleteResult{}, err
	}
	changes, snaps, err := s.store.DeleteDay(ctx, day)
	if err != nil {
		return DeleteResult{}, errors.Wrapf(err, "delete %s", day)
	}
	s.logger.Info("deleted day",
		zap.String("day", day),
		zap.Int64("changes", changes),
		zap.Int64("snapshots", snaps))
	return DeleteResult{Day: day, ChangesDeleted: changes, SnapshotsDeleted: snaps}, nil
}
