package history

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/lifecycle"
)

const (
	DefaultSuggestLimit = 30
	minSuggestLimit     = 5
	maxSuggestLimit     = 200
)

// SymbolLifecycle is the event history of one symbol.
type SymbolLifecycle struct {
	Profile      ProfileRef     `json:"profile"`
	Symbol       string         `json:"symbol"`
	Product      string         `json:"product"`
	ProductsSeen []string       `json:"products_seen"`
	Events       []domain.Event `json:"events"`
}

// UnderlyingEvents is the event history grouped by underlying.
type UnderlyingEvents struct {
	Profile     ProfileRef                `json:"profile"`
	Underlyings []string                  `json:"underlyings"`
	Events      map[string][]domain.Event `json:"events"`
	Filter      string                    `json:"filter,omitempty"`
}

// SymbolSuggestions is the result of a symbol search.
type SymbolSuggestions struct {
	Profile ProfileRef `json:"profile"`
	Query   string     `json:"q"`
	Limit   int        `json:"limit"`
	Symbols []string   `json:"symbols"`
}

// SymbolLifecycle replays every snapshot of a profile and returns the events
// of symbol, latest first. An empty product selects every product.
func (s *Service) SymbolLifecycle(ctx context.Context, slug, symbol, product string) (SymbolLifecycle, error) {
	defer s.metrics.TimeQuery("symbol_lifecycle")()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	product = strings.TrimSpace(product)
	if symbol == "" {
		return SymbolLifecycle{}, ErrSymbolRequired
	}

	p, hist, changeIDs, err := s.replayInput(ctx, slug)
	if err != nil {
		return SymbolLifecycle{}, err
	}

	events := lifecycle.Replay(hist, lifecycle.Filter{Symbol: symbol, Product: product})
	return SymbolLifecycle{
		Profile:      refOf(p),
		Symbol:       symbol,
		Product:      product,
		ProductsSeen: lifecycle.ProductsSeen(hist, symbol),
		Events:       withChangeIDs(lifecycle.Reverse(events), changeIDs),
	}, nil
}

// Underlyings returns every underlying the profile traded and its events,
// latest first. A non-empty underlying restricts the events to it.
func (s *Service) Underlyings(ctx context.Context, slug, underlying string) (UnderlyingEvents, error) {
	defer s.metrics.TimeQuery("underlyings")()

	underlying = strings.ToUpper(strings.TrimSpace(underlying))

	p, hist, changeIDs, err := s.replayInput(ctx, slug)
	if err != nil {
		return UnderlyingEvents{}, err
	}

	events := lifecycle.Replay(hist, lifecycle.Filter{Underlying: underlying})
	return UnderlyingEvents{
		Profile:     refOf(p),
		Underlyings: lifecycle.Underlyings(hist),
		Events:      lifecycle.GroupByUnderlying(withChangeIDs(lifecycle.Reverse(events), changeIDs)),
		Filter:      underlying,
	}, nil
}

func (s *Service) replayInput(ctx context.Context, slug string) (domain.Profile, []domain.Snapshot, map[int64]int64, error) {
	p, err := s.profile(ctx, slug)
	if err != nil {
		return domain.Profile{}, nil, nil, err
	}
	hist, err := s.history(ctx, p.ID)
	if err != nil {
		return domain.Profile{}, nil, nil, err
	}
	changeIDs, err := s.store.ChangeIDsBySnapshot(ctx, p.ID)
	if err != nil {
		return domain.Profile{}, nil, nil, errors.Wrap(err, "load change ids")
	}
	return p, hist, changeIDs, nil
}

func withChangeIDs(events []domain.Event, changeIDs map[int64]int64) []domain.Event {
	for i := range events {
		if id, ok := changeIDs[events[i].SnapshotID]; ok {
			id := id
			events[i].ChangeID = &id
		}
	}
	return events
}

// ClampSuggestLimit bounds a requested suggestion count. Non-positive values
// select the default.
func ClampSuggestLimit(limit int) int {
	if limit <= 0 {
		return DefaultSuggestLimit
	}
	if limit < minSuggestLimit {
		return minSuggestLimit
	}
	if limit > maxSuggestLimit {
		return maxSuggestLimit
	}
	return limit
}

// SuggestSymbols returns up to limit symbols the profile traded that match q
// case-insensitively: prefix matches first, then substring matches, each
// alphabetical. An empty q returns the first symbols alphabetically.
func (s *Service) SuggestSymbols(ctx context.Context, slug, q string, limit int) (SymbolSuggestions, error) {
	defer s.metrics.TimeQuery("symbol_suggest")()

	limit = ClampSuggestLimit(limit)
	q = strings.TrimSpace(q)

	p, err := s.profile(ctx, slug)
	if err != nil {
		return SymbolSuggestions{}, err
	}

	key := strconv.FormatInt(p.ID, 10)
	symbols, ok := s.symbols.Get(key)
	if !ok {
		hist, err := s.history(ctx, p.ID)
		if err != nil {
			return SymbolSuggestions{}, err
		}
		symbols = lifecycle.Symbols(hist)
		s.symbols.Put(key, symbols)
	}

	return SymbolSuggestions{
		Profile: refOf(p),
		Query:   q,
		Limit:   limit,
		Symbols: matchSymbols(symbols, q, limit),
	}, nil
}

func matchSymbols(symbols []string, q string, limit int) []string {
	needle := strings.ToUpper(q)
	prefix := make([]string, 0, limit)
	var contains []string
	for _, sym := range symbols {
		up := strings.ToUpper(sym)
		switch {
		case strings.HasPrefix(up, needle):
			prefix = append(prefix, sym)
		case strings.Contains(up, needle):
			contains = append(contains, sym)
		}
	}
	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
