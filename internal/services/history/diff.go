package history

import (
	"context"
	"encoding/json"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/differ"
	"github.com/vadiminshakov/poswatch/internal/services/normalizer"
	"go.uber.org/zap"
)

// ChangeDiff is the detailed view of one recorded change.
type ChangeDiff struct {
	ChangeID   int64             `json:"change_id"`
	SnapshotID int64             `json:"snapshot_id"`
	Summary    string            `json:"diff_summary"`
	Positions  json.RawMessage   `json:"positions"`
	Diff       domain.DiffResult `json:"diff"`
}

// Diff compares the snapshot of a change with the one stored right before it.
// Zero quantities and prices in the previous snapshot are backfilled from all
// earlier snapshots of the profile.
func (s *Service) Diff(ctx context.Context, changeID int64) (ChangeDiff, error) {
	defer s.metrics.TimeQuery("diff")()

	change, err := s.store.Change(ctx, changeID)
	if err != nil {
		return ChangeDiff{}, errors.Wrapf(err, "change %d", changeID)
	}

	var current domain.StoredSnapshot
	stored, err := s.store.Snapshot(ctx, change.SnapshotID)
	switch {
	case err == nil:
		current = stored
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("change references a missing snapshot",
			zap.Int64("change_id", changeID), zap.Int64("snapshot_id", change.SnapshotID))
	default:
		return ChangeDiff{}, errors.Wrapf(err, "snapshot %d", change.SnapshotID)
	}

	earlierStored, err := s.store.SnapshotsBefore(ctx, change.ProfileID, change.SnapshotID)
	if err != nil {
		return ChangeDiff{}, errors.Wrap(err, "load earlier snapshots")
	}
	earlier := s.normalizeAll(earlierStored)

	currTrades := domain.TradeMap{}
	if snap, err := normalizer.NormalizeSnapshot(current); err == nil {
		currTrades = snap.Trades
	} else {
		s.logger.Warn("skipping unparseable snapshot", zap.Int64("snapshot_id", current.ID), zap.Error(err))
	}

	return ChangeDiff{
		ChangeID:   change.ID,
		SnapshotID: change.SnapshotID,
		Summary:    change.DiffSummary,
		Positions:  positionsOf(current.Raw),
		Diff:       differ.Diff(tradesOf(last(earlier)), currTrades, differ.BuildHistorical(earlier)),
	}, nil
}

// positionsOf extracts the raw data list of a snapshot, or [] when absent.
func positionsOf(raw []byte) json.RawMessage {
	empty := json.RawMessage("[]")
	if len(raw) == 0 {
		return empty
	}
	js, err := simplejson.NewJson(raw)
	if err != nil {
		return empty
	}
	data, ok := js.CheckGet("data")
	if !ok {
		return empty
	}
	if _, err := data.Array(); err != nil {
		return empty
	}
	b, err := data.MarshalJSON()
	if err != nil {
		return empty
	}
	return b
}
