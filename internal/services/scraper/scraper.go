package scraper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/clients"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/metrics"
	"github.com/vadiminshakov/poswatch/internal/notification"
	"github.com/vadiminshakov/poswatch/internal/services/differ"
	"github.com/vadiminshakov/poswatch/internal/services/normalizer"
	"go.uber.org/zap"
)

// Store is the part of the snapshot store the poller writes to.
type Store interface {
	ListProfiles(ctx context.Context, activeOnly bool) ([]domain.Profile, error)
	LastSnapshot(ctx context.Context, profileID int64) (*domain.StoredSnapshot, error)
	SaveSnapshot(ctx context.Context, profileID int64, ts time.Time, raw []byte, createdAtSource string) (int64, error)
	RecordChange(ctx context.Context, profileID, snapshotID int64, ts time.Time, summary string) (int64, error)
	UpsertLatest(ctx context.Context, profileID int64, ts time.Time, raw []byte) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, int64, error)
}

// ChangeFeed receives every recorded change.
type ChangeFeed interface {
	Save(event domain.ChangeEvent) (domain.ChangeEvent, error)
}

// MarketClock reports whether the market is open at t.
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// Scraper polls the position feed for every active profile and records
// structural changes.
type Scraper struct {
	store         Store
	fetcher       clients.SnapshotFetcher
	feed          ChangeFeed
	notifier      notification.Notifier
	market        MarketClock
	metrics       *metrics.Metrics
	logger        *zap.Logger
	interval      time.Duration
	retentionDays int
	now           func() time.Time
}

type Option func(*Scraper)

func WithChangeFeed(feed ChangeFeed) Option {
	return func(s *Scraper) { s.feed = feed }
}

func WithNotifier(n notification.Notifier) Option {
	return func(s *Scraper) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

func WithRetentionDays(days int) Option {
	return func(s *Scraper) { s.retentionDays = days }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

func New(store Store, fetcher clients.SnapshotFetcher, market MarketClock, interval time.Duration, logger *zap.Logger, opts ...Option) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		store:    store,
		fetcher:  fetcher,
		market:   market,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls once immediately and then on every tick until ctx is done.
func (s *Scraper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	s.logger.Info("starting poll loop", zap.Duration("poll_interval", s.interval))
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("poll round failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context done, stopping poll loop")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("poll round failed", zap.Error(err))
			}
		}
	}
}

// RunOnce prunes expired data and polls every active profile once. Failures
// of a single profile are logged and do not stop the round.
func (s *Scraper) RunOnce(ctx context.Context) error {
	profiles, err := s.store.ListProfiles(ctx, true)
	if err != nil {
		return errors.Wrap(err, "list profiles")
	}

	s.prune(ctx)

	for _, p := range profiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := s.poll(ctx, p)
		if err != nil {
			s.logger.Error("poll profile failed", zap.String("profile", p.Slug), zap.Error(err))
			result = metrics.ResultError
		}
		s.metrics.Poll(p.Slug, result)
	}

	s.metrics.RoundDone(s.now())
	return nil
}

func (s *Scraper) poll(ctx context.Context, p domain.Profile) (string, error) {
	last, err := s.store.LastSnapshot(ctx, p.ID)
	if err != nil {
		return "", errors.Wrap(err, "load last snapshot")
	}

	now := s.now()
	if last != nil && s.market != nil && !s.market.IsOpen(now) {
		s.logger.Debug("market closed and data exists, skipping", zap.String("profile", p.Slug))
		return metrics.ResultSkipped, nil
	}

	start := time.Now()
	snap, err := s.fetcher.Fetch(ctx, p.Slug)
	s.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		if errors.Is(err, clients.ErrNoData) {
			s.logger.Info("feed returned no data", zap.String("profile", p.Slug))
			return metrics.ResultNoData, nil
		}
		return "", errors.Wrap(err, "fetch snapshot")
	}

	if err := s.store.UpsertLatest(ctx, p.ID, now, snap.Raw); err != nil {
		return "", errors.Wrap(err, "upsert latest snapshot")
	}

	curr, err := domain.ParsePayload(snap.Raw)
	if err != nil {
		return "", errors.Wrap(err, "parse fetched snapshot")
	}

	if last == nil {
		s.logger.Info("initial snapshot", zap.String("profile", p.Slug))
		return metrics.ResultStored, s.record(ctx, p, now, snap, domain.Payload{}, curr, differ.InitialSummary)
	}

	prev, err := domain.ParsePayload(last.Raw)
	if err != nil {
		s.logger.Warn("stored snapshot is unparseable, treating as empty",
			zap.String("profile", p.Slug), zap.Int64("snapshot_id", last.ID), zap.Error(err))
		prev = domain.Payload{}
	}

	if !differ.StructureChanged(prev, curr) {
		s.logger.Debug("no change", zap.String("profile", p.Slug))
		return metrics.ResultUnchanged, nil
	}

	summary := differ.Summarize(prev, curr)
	s.logger.Info("change detected", zap.String("profile", p.Slug), zap.String("summary", summary))
	return metrics.ResultStored, s.record(ctx, p, now, snap, prev, curr, summary)
}

func (s *Scraper) record(ctx context.Context, p domain.Profile, now time.Time, snap clients.FeedSnapshot, prev, curr domain.Payload, summary string) error {
	snapshotID, err := s.store.SaveSnapshot(ctx, p.ID, now, snap.Raw, snap.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	changeID, err := s.store.RecordChange(ctx, p.ID, snapshotID, now, summary)
	if err != nil {
		return errors.Wrap(err, "record change")
	}
	s.metrics.Change(p.Slug)

	diff := differ.Diff(normalizer.Normalize(prev.Groups), normalizer.Normalize(curr.Groups), nil)
	event := domain.ChangeEvent{
		Profile:    p.Slug,
		ChangeID:   changeID,
		SnapshotID: snapshotID,
		Timestamp:  now,
		Summary:    summary,
		Added:      len(diff.Added),
		Removed:    len(diff.Removed),
		Modified:   len(diff.Modified),
	}
	s.publish(ctx, event)
	return nil
}

func (s *Scraper) publish(ctx context.Context, event domain.ChangeEvent) {
	if s.feed != nil {
		stored, err := s.feed.Save(event)
		if err != nil {
			s.logger.Error("append change feed", zap.String("profile", event.Profile), zap.Error(err))
		} else {
			event = stored
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("notify change", zap.String("profile", event.Profile), zap.Error(err))
		}
	}
}

func (s *Scraper) prune(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	changes, snaps, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("prune old data", zap.Error(err))
		return
	}
	if changes > 0 || snaps > 0 {
		s.logger.Info("pruned old data",
			zap.Time("cutoff", cutoff),
			zap.Int64("changes", changes),
			zap.Int64("snapshots", snaps))
	}
}
