// Package calendar resolves trading days, session bounds and weekly option
// expiries for an exchange.
package calendar

import (
	"time"

	"github.com/contactkeval/index-replay/internal/logger"
)

// IST is Indian Standard Time as a fixed zone. It is used whenever the
// tz database is unavailable and keeps tests independent of the host.
var IST = time.FixedZone("IST", 5*3600+30*60)

var (
	DefaultOpen  = Clock{Hour: 9, Minute: 15}
	DefaultClose = Clock{Hour: 15, Minute: 30}
)

// DefaultHolidays is the exchange holiday set used when none is configured.
func DefaultHolidays() []Date {
	return []Date{
		MustDate("2024-01-26"), MustDate("2024-05-01"), MustDate("2024-08-15"),
		MustDate("2024-10-02"), MustDate("2024-12-25"),
		MustDate("2025-01-26"), MustDate("2025-05-01"), MustDate("2025-08-15"),
		MustDate("2025-10-02"), MustDate("2025-12-25"),
		MustDate("2026-01-26"), MustDate("2026-05-01"), MustDate("2026-08-15"),
		MustDate("2026-10-02"), MustDate("2026-12-25"),
	}
}

// LoadLocation returns the named zone, falling back to IST when the
// tz database cannot resolve it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return IST
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warnf("event=tz_fallback zone=%s err=%v using=IST", name, err)
		return IST
	}
	return loc
}

// Config is the static input to New.
type Config struct {
	Location     *time.Location
	Holidays     []Date
	SessionOpen  Clock
	SessionClose Clock
}

// Calendar is a read-only snapshot of an exchange's calendar.
// It is safe for concurrent use.
type Calendar struct {
	loc      *time.Location
	holidays map[Date]struct{}
	open     Clock
	close    Clock
}

// New builds a Calendar. Zero fields take the IST defaults; a nil
// Holidays slice means no holidays.
func New(cfg Config) *Calendar {
	c := &Calendar{
		loc:      cfg.Location,
		holidays: make(map[Date]struct{}, len(cfg.Holidays)),
		open:     cfg.SessionOpen,
		close:    cfg.SessionClose,
	}
	if c.loc == nil {
		c.loc = IST
	}
	if c.open.IsZero() {
		c.open = DefaultOpen
	}
	if c.close.IsZero() {
		c.close = DefaultClose
	}
	for _, h := range cfg.Holidays {
		c.holidays[h] = struct{}{}
	}
	return c
}

// Default is the IST calendar with the built-in holiday set.
func Default() *Calendar {
	return New(Config{Location: IST, Holidays: DefaultHolidays()})
}

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) SessionOpen() Clock { return c.open }

func (c *Calendar) SessionClose() Clock { return c.close }

// IsHoliday reports whether d is in the holiday set.
func (c *Calendar) IsHoliday(d Date) bool {
	_, ok := c.holidays[d]
	return ok
}

// IsTradingDay is true for weekdays that are not holidays.
func (c *Calendar) IsTradingDay(d Date) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}

// NextExpiry resolves the weekly expiry on or after ref's date for the given
// expiry weekday. A weekday that is a holiday rolls back to the previous
// trading day; if that lands before ref's date the following week is used.
// The result is stamped at session close in the exchange location.
func (c *Calendar) NextExpiry(ref time.Time, weekday time.Weekday) time.Time {
	day := DateOf(ref.In(c.loc))

	for week := 0; ; week++ {
		start := day.AddDays(7 * week)
		offset := (int(weekday) - int(start.Weekday()) + 7) % 7
		expiry := start.AddDays(offset)

		for !c.IsTradingDay(expiry) {
			expiry = expiry.AddDays(-1)
		}

		if !expiry.Before(day) {
			logger.Tracef("event=expiry_resolved ref=%s weekday=%s expiry=%s", day, weekday, expiry)
			return On(expiry, c.close, c.loc)
		}
	}
}

// BusinessDays lists every Monday-Friday between start and end inclusive,
// as midnight in the exchange location. Holidays are kept; a holiday simply
// yields no data from the provider.
func (c *Calendar) BusinessDays(start, end Date) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDays(1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		days = append(days, d.In(c.loc))
	}
	return days
}

// SessionBounds returns the open and close of day's session.
func (c *Calendar) SessionBounds(day Date) (open, close time.Time) {
	return On(day, c.open, c.loc), On(day, c.close, c.loc)
}

// At places a time of day on day in the exchange location.
func (c *Calendar) At(day Date, clock Clock) time.Time {
	return On(day, clock, c.loc)
}
