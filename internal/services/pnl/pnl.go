// Package pnl derives daily P&L figures from a profile's snapshot history.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/normalizer"
)

// SnapshotPnL sums unbooked and booked P&L over every raw trade of payload.
// Duplicate entries are summed as they appear.
func SnapshotPnL(payload domain.Payload) (total, booked decimal.Decimal) {
	total, booked = decimal.Zero, decimal.Zero
	for _, g := range payload.Groups {
		for _, raw := range g.Trades {
			u, b := normalizer.RawPnL(raw)
			total = total.Add(u).Add(b)
			booked = booked.Add(b)
		}
	}
	return total, booked
}

// Calculator computes daily metrics in a fixed timezone.
type Calculator struct {
	loc *time.Location
	now func() time.Time
}

// NewCalculator creates a calculator. A nil now uses time.Now.
func NewCalculator(loc *time.Location, now func() time.Time) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{loc: loc, now: now}
}

// Compute returns the metrics of the calendar day containing day.
// history must be in insertion order. latest is the realtime snapshot and is
// used only when day is today.
func (c *Calculator) Compute(history []domain.Snapshot, latest *domain.Snapshot, day time.Time) domain.DailyMetrics {
	metrics := domain.DailyMetrics{
		StartPnL:    decimal.Zero,
		CurrentPnL:  decimal.Zero,
		TodaysPnL:   decimal.Zero,
		BookedPnL:   decimal.Zero,
		StartSource: domain.StartNone,
	}

	dayStart := c.StartOfDay(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var lastBefore, firstOfDay, lastOfDay *domain.Snapshot
	for i := range history {
		s := &history[i]
		switch {
		case s.Timestamp.Before(dayStart):
			lastBefore = s
		case s.Timestamp.Before(dayEnd):
			if firstOfDay == nil {
				firstOfDay = s
			}
			lastOfDay = s
		}
	}

	switch {
	case lastBefore != nil:
		total, booked := SnapshotPnL(lastBefore.Payload)
		metrics.StartPnL = total.Sub(booked)
		metrics.StartSource = domain.StartPreviousDay
	case firstOfDay != nil:
		metrics.StartPnL, _ = SnapshotPnL(firstOfDay.Payload)
		metrics.StartSource = domain.StartFirstOfDay
	}

	current := lastOfDay
	if latest != nil && c.IsToday(day) {
		current = latest
	}
	if current != nil {
		metrics.CurrentPnL, metrics.BookedPnL = SnapshotPnL(current.Payload)
		ts := current.Timestamp
		metrics.LastUpdated = &ts
	}

	metrics.TodaysPnL = metrics.CurrentPnL.Sub(metrics.StartPnL)

	return metrics
}

// StartOfDay returns midnight of t's calendar day in the calculator's timezone.
func (c *Calculator) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// IsToday reports whether t falls on the current calendar day.
func (c *Calculator) IsToday(t time.Time) bool {
	return c.StartOfDay(t).Equal(c.StartOfDay(c.now()))
}
