// Package history answers read-only queries over stored snapshots and changes.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/cache"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/metrics"
	"github.com/vadiminshakov/poswatch/internal/services/normalizer"
	"github.com/vadiminshakov/poswatch/internal/services/pnl"
	"github.com/vadiminshakov/poswatch/internal/storage/snapshots"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for unknown profiles and changes.
	ErrNotFound = snapshots.ErrNotFound
	// ErrBadDate is returned when a day is not in YYYY-MM-DD form.
	ErrBadDate = errors.New("date must be YYYY-MM-DD")
	// ErrSymbolRequired is returned by SymbolLifecycle for an empty symbol.
	ErrSymbolRequired = errors.New("symbol is required")
)

const (
	defaultStaleAfter = 3 * time.Minute
	overviewDays      = 30
)

// Store is the read side of the snapshot store plus day deletion.
type Store interface {
	Location() *time.Location
	Day(t time.Time) string
	ProfileBySlug(ctx context.Context, slug string) (domain.Profile, error)
	ListProfiles(ctx context.Context, activeOnly bool) ([]domain.Profile, error)
	Snapshot(ctx context.Context, id int64) (domain.StoredSnapshot, error)
	ListSnapshots(ctx context.Context, profileID int64) ([]domain.StoredSnapshot, error)
	SnapshotsBefore(ctx context.Context, profileID, snapshotID int64) ([]domain.StoredSnapshot, error)
	Latest(ctx context.Context, profileID int64) (*domain.StoredSnapshot, error)
	LastUpdated(ctx context.Context) (*time.Time, error)
	Change(ctx context.Context, id int64) (domain.Change, error)
	ChangesOnDay(ctx context.Context, profileID int64, day string) ([]domain.Change, error)
	ChangeDates(ctx context.Context, limit int) ([]string, error)
	ChangeCounts(ctx context.Context, since string) ([]snapshots.DayCount, error)
	ChangeIDsBySnapshot(ctx context.Context, profileID int64) (map[int64]int64, error)
	DeleteDay(ctx context.Context, day string) (int64, int64, error)
}

// MarketClock reports whether the market is open at t.
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// ProfileRef identifies a profile in query results.
type ProfileRef struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func refOf(p domain.Profile) ProfileRef {
	return ProfileRef{ID: p.ID, Slug: p.Slug, Name: p.Name}
}

// Service composes the store with the diff, lifecycle and P&L engines.
type Service struct {
	store      Store
	market     MarketClock
	symbols    cache.Cache[[]string]
	calc       *pnl.Calculator
	metrics    *metrics.Metrics
	logger     *zap.Logger
	staleAfter time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithSymbolCache sets the cache holding per-profile symbol lists.
func WithSymbolCache(c cache.Cache[[]string]) Option {
	return func(s *Service) { s.symbols = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, market MarketClock, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:      store,
		market:     market,
		logger:     logger,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.symbols == nil {
		s.symbols = cache.NewMemory[[]string](5 * time.Minute)
	}
	s.calc = pnl.NewCalculator(store.Location(), s.now)
	return s
}

// ParseDay validates a YYYY-MM-DD day in the store's timezone.
func (s *Service) ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(snapshots.DayLayout, day, s.store.Location())
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrBadDate, "%q", day)
	}
	return t, nil
}

func (s *Service) profile(ctx context.Context, slug string) (domain.Profile, error) {
	p, err := s.store.ProfileBySlug(ctx, slug)
	if err != nil {
		return domain.Profile{}, errors.Wrapf(err, "profile %q", slug)
	}
	return p, nil
}

// normalizeAll decodes stored snapshots, skipping the ones that fail to parse.
func (s *Service) normalizeAll(stored []domain.StoredSnapshot) []domain.Snapshot {
	out := make([]domain.Snapshot, 0, len(stored))
	for _, st := range stored {
		snap, err := normalizer.NormalizeSnapshot(st)
		if err != nil {
			s.logger.Warn("skipping unparseable snapshot",
				zap.Int64("snapshot_id", st.ID),
				zap.Int64("profile_id", st.ProfileID),
				zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out
}

func (s *Service) history(ctx context.Context, profileID int64) ([]domain.Snapshot, error) {
	stored, err := s.store.ListSnapshots(ctx, profileID)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshots")
	}
	return s.normalizeAll(stored), nil
}

func (s *Service) latest(ctx context.Context, profileID int64) (*domain.Snapshot, error) {
	stored, err := s.store.Latest(ctx, profileID)
	if err != nil {
		return nil, errors.Wrap(err, "load latest snapshot")
	}
	if stored == nil {
		return nil, nil
	}
	snap, err := normalizer.NormalizeSnapshot(*stored)
	if err != nil {
		s.logger.Warn("skipping unparseable realtime snapshot", zap.Int64("profile_id", profileID), zap.Error(err))
		return nil, nil
	}
	return &snap, nil
}

// splitAt returns the snapshot with id and every snapshot inserted before it.
// snaps must be in insertion order. curr is nil when id is not in snaps.
func splitAt(snaps []domain.Snapshot, id int64) (curr *domain.Snapshot, earlier []domain.Snapshot) {
	for i := range snaps {
		switch {
		case snaps[i].ID == id:
			return &snaps[i], snaps[:i]
		case snaps[i].ID > id:
			return nil, snaps[:i]
		}
	}
	return nil, snaps
}

func last(snaps []domain.Snapshot) *domain.Snapshot {
	if len(snaps) == 0 {
		return nil
	}
	return &snaps[len(snaps)-1]
}

func tradesOf(s *domain.Snapshot) domain.TradeMap {
	if s == nil {
		return domain.TradeMap{}
	}
	return s.Trades
}
