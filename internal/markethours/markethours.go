// Package markethours answers whether the NSE cash session is running.
package markethours

import (
	"time"

	"github.com/pkg/errors"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session bounds in local market time, both inclusive.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

const dateLayout = "2006-01-02"

// Calendar knows the trading week and exchange holidays of one timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New creates a calendar for loc. holidays are YYYY-MM-DD dates.
func New(loc *time.Location, holidays []string) (*Calendar, error) {
	if loc == nil {
		loc = IST
	}

	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		if _, err := time.ParseInLocation(dateLayout, h, loc); err != nil {
			return nil, errors.Wrapf(err, "invalid holiday %q", h)
		}
		c.holidays[h] = struct{}{}
	}

	return c, nil
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsOpen reports whether t falls within Mon-Fri 09:15:00-15:30:00 on a non-holiday.
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}

	local := t.In(c.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), OpenHour, OpenMinute, 0, 0, c.loc)
	closing := time.Date(local.Year(), local.Month(), local.Day(), CloseHour, CloseMinute, 0, 0, c.loc)

	return !local.Before(open) && !local.After(closing)
}

// IsTradingDay reports whether t is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[local.Format(dateLayout)]
	return !holiday
}
