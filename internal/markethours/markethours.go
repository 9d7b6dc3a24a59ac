// Package markethours answers a single stateless question: given a
// timestamp, is the market open for a given set of allowed sessions and
// holiday calendar.
//
// Grounded on the America/New_York session-window convention used
// throughout the retrieved corpus's equities code (poorman-SynapseStrike's
// calculateAnchoredVWAP/calculateTimeframeSeries anchor every session
// boundary to 9:30 AM ET), generalized from "is VWAP session open" to the
// four named trading sessions.
package markethours

import (
	"time"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// sessionWindow is a fixed local-time-of-day range, in seconds since
// midnight, inclusive of both endpoints: the window closes at the boundary
// second itself, so 15:30:00 is in session and 15:30:01 is not.
type sessionWindow struct {
	startSecond, endSecond int
}

func seconds(hour, minute, second int) int { return hour*3600 + minute*60 + second }

var sessionWindows = map[domain.MarketSession]sessionWindow{
	domain.SessionPreMarket:         {seconds(8, 30, 0), seconds(8, 40, 0)},
	domain.SessionRegular:           {seconds(9, 0, 0), seconds(15, 30, 0)},
	domain.SessionAfterHoursClosing: {seconds(15, 40, 0), seconds(16, 0, 0)},
	domain.SessionAfterHours:        {seconds(16, 0, 0), seconds(18, 0, 0)},
}

func (w sessionWindow) contains(secondOfDay int) bool {
	return secondOfDay >= w.startSecond && secondOfDay <= w.endSecond
}

// Calendar answers market-open queries against a fixed timezone, an allowed
// session set, and a holiday date set.
type Calendar struct {
	location  *time.Location
	allowed   map[domain.MarketSession]bool
	holidays  map[string]bool // "2006-01-02" in the calendar's location
}

// NewCalendar builds a Calendar. allowedSessions with zero entries allows
// none (always closed); callers should pass the sessions their venue
// actually trades.
func NewCalendar(location *time.Location, allowedSessions []domain.MarketSession, holidays []time.Time) *Calendar {
	allowed := make(map[domain.MarketSession]bool, len(allowedSessions))
	for _, s := range allowedSessions {
		allowed[s] = true
	}
	holidaySet := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		holidaySet[h.In(location).Format("2006-01-02")] = true
	}
	return &Calendar{location: location, allowed: allowed, holidays: holidaySet}
}

// NewYorkCalendar builds a Calendar anchored to America/New_York, the
// standard US equities session timezone.
func NewYorkCalendar(allowedSessions []domain.MarketSession, holidays []time.Time) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	return NewCalendar(loc, allowedSessions, holidays), nil
}

// IsOpen reports whether the market is open at t: a weekday, not a holiday,
// and within at least one allowed session window.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.CurrentSession(t) != domain.SessionClosed
}

// CurrentSession returns the named session t falls in, or SessionClosed if
// the market is closed (weekend, holiday, or outside every allowed window).
func (c *Calendar) CurrentSession(t time.Time) domain.MarketSession {
	local := t.In(c.location)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return domain.SessionClosed
	}
	if c.holidays[local.Format("2006-01-02")] {
		return domain.SessionClosed
	}

	secondOfDay := seconds(local.Hour(), local.Minute(), local.Second())
	for session, window := range sessionWindows {
		if !c.allowed[session] {
			continue
		}
		if window.contains(secondOfDay) {
			return session
		}
	}
	return domain.SessionClosed
}
