package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/differ"
	"github.com/vadiminshakov/poswatch/internal/services/pnl"
)

const (
	ColorGreen = "green"
	ColorRed   = "red"
)

// LogLine describes how one instrument changed.
type LogLine struct {
	Symbol string `json:"symbol"`
	Text   string `json:"text"`
	Color  string `json:"color"`
}

// LogEntry is one recorded change of the daily log.
type LogEntry struct {
	Time      string          `json:"time"`
	ChangeID  int64           `json:"change_id"`
	TodaysPnL decimal.Decimal `json:"todays_pnl"`
	BookedPnL decimal.Decimal `json:"booked_pnl"`
	Changes   []LogLine       `json:"changes"`
}

// DailyMetrics returns the P&L summary of a profile for day (YYYY-MM-DD).
func (s *Service) DailyMetrics(ctx context.Context, slug, day string) (domain.DailyMetrics, error) {
	defer s.metrics.TimeQuery("daily_metrics")()

	date, err := s.ParseDay(day)
	if err != nil {
		return domain.DailyMetrics{}, err
	}
	p, err := s.profile(ctx, slug)
	if err != nil {
		return domain.DailyMetrics{}, err
	}
	hist, err := s.history(ctx, p.ID)
	if err != nil {
		return domain.DailyMetrics{}, err
	}
	return s.metricsFor(ctx, p.ID, hist, date)
}

func (s *Service) metricsFor(ctx context.Context, profileID int64, hist []domain.Snapshot, date time.Time) (domain.DailyMetrics, error) {
	var latest *domain.Snapshot
	if s.calc.IsToday(date) {
		var err error
		if latest, err = s.latest(ctx, profileID); err != nil {
			return domain.DailyMetrics{}, err
		}
	}
	return s.calc.Compute(hist, latest, date), nil
}

// DailyLog lists the changes of a profile on day, latest first, each with the
// P&L at that change and a line per changed instrument.
func (s *Service) DailyLog(ctx context.Context, slug, day string) ([]LogEntry, error) {
	defer s.metrics.TimeQuery("daily_log")()

	date, err := s.ParseDay(day)
	if err != nil {
		return nil, err
	}
	p, err := s.profile(ctx, slug)
	if err != nil {
		return nil, err
	}
	hist, err := s.history(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	start := s.calc.Compute(hist, nil, date).StartPnL

	changes, err := s.store.ChangesOnDay(ctx, p.ID, day)
	if err != nil {
		return nil, errors.Wrap(err, "load changes")
	}

	entries := make([]LogEntry, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]
		curr, earlier := splitAt(hist, ch.SnapshotID)

		total, booked := decimal.Zero, decimal.Zero
		if curr != nil {
			total, booked = pnl.SnapshotPnL(curr.Payload)
		}

		diff := differ.Diff(tradesOf(last(earlier)), tradesOf(curr), differ.BuildHistorical(earlier))
		entries = append(entries, LogEntry{
			Time:      ch.Timestamp.In(s.store.Location()).Format("15:04:05"),
			ChangeID:  ch.ID,
			TodaysPnL: total.Sub(start),
			BookedPnL: booked,
			Changes:   logLines(diff),
		})
	}

	return entries, nil
}

func logLines(diff domain.DiffResult) []LogLine {
	lines := make([]LogLine, 0, len(diff.Added)+len(diff.Removed)+len(diff.Modified))
	for _, e := range diff.Added {
		lines = append(lines, LogLine{
			Symbol: e.TradingSymbol,
			Text:   fmt.Sprintf("Qty: 0 → %d (%s)", e.Quantity, signed(e.Quantity)),
			Color:  ColorGreen,
		})
	}
	for _, e := range diff.Removed {
		lines = append(lines, LogLine{
			Symbol: e.TradingSymbol,
			Text:   fmt.Sprintf("Qty: %d → 0%s", e.OriginalQuantity, exitText(e)),
			Color:  ColorRed,
		})
	}
	for _, e := range diff.Modified {
		color := ColorRed
		if e.QuantityDiff > 0 {
			color = ColorGreen
		}
		lines = append(lines, LogLine{
			Symbol: e.TradingSymbol,
			Text:   fmt.Sprintf("Qty: %d → %d (%s)%s", e.OldQuantity, e.Quantity, signed(e.QuantityDiff), exitText(e)),
			Color:  color,
		})
	}
	return lines
}

func signed(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func exitText(e domain.DiffEntry) string {
	if e.ExitPnL.IsZero() {
		return ""
	}
	return fmt.Sprintf(" | Exit P&L: ₹%s | Exit Price: ₹%s", groupThousands(e.ExitPnL.StringFixed(2)), e.ExitPrice.StringFixed(2))
}

// groupThousands inserts comma separators into the integer part of a fixed-point number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

// OverviewCell is the activity of one profile on one day.
type OverviewCell struct {
	Count     int             `json:"count"`
	TodaysPnL decimal.Decimal `json:"todays_pnl"`
}

// OverviewRow is the activity of one profile over the overview days.
type OverviewRow struct {
	Profile ProfileRef              `json:"profile"`
	Days    map[string]OverviewCell `json:"days"`
}

// Overview is the profile by day activity matrix.
type Overview struct {
	Dates  []string      `json:"dates"`
	Rows   []OverviewRow `json:"rows"`
	Status Status        `json:"status"`
}

// Overview returns, for every active profile, the change count and today's
// P&L on each of the most recent days that had changes.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	defer s.metrics.TimeQuery("overview")()

	dates, err := s.store.ChangeDates(ctx, overviewDays)
	if err != nil {
		return Overview{}, errors.Wrap(err, "load change dates")
	}
	if dates == nil {
		dates = []string{}
	}
	profiles, err := s.store.ListProfiles(ctx, true)
	if err != nil {
		return Overview{}, errors.Wrap(err, "load profiles")
	}

	counts := make(map[int64]map[string]int)
	if len(dates) > 0 {
		rows, err := s.store.ChangeCounts(ctx, dates[len(dates)-1])
		if err != nil {
			return Overview{}, errors.Wrap(err, "count changes")
		}
		for _, r := range rows {
			if counts[r.ProfileID] == nil {
				counts[r.ProfileID] = make(map[string]int)
			}
			counts[r.ProfileID][r.Day] = r.Count
		}
	}

	out := Overview{Dates: dates, Rows: make([]OverviewRow, 0, len(profiles))}
	for _, p := range profiles {
		row := OverviewRow{Profile: refOf(p), Days: make(map[string]OverviewCell, len(dates))}

		var hist []domain.Snapshot
		if len(counts[p.ID]) > 0 {
			if hist, err = s.history(ctx, p.ID); err != nil {
				return Overview{}, err
			}
		}

		for _, day := range dates {
			cell := OverviewCell{Count: counts[p.ID][day], TodaysPnL: decimal.Zero}
			if cell.Count > 0 {
				date, err := s.ParseDay(day)
				if err != nil {
					return Overview{}, err
				}
				m, err := s.metricsFor(ctx, p.ID, hist, date)
				if err != nil {
					return Overview{}, err
				}
				cell.TodaysPnL = m.TodaysPnL
			}
			row.Days[day] = cell
		}
		out.Rows = append(out.Rows, row)
	}

	if out.Status, err = s.Status(ctx); err != nil {
		return Overview{}, err
	}
	return out, nil
}
