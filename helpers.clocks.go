package main

import (
	"time"
)

var _ TickerClocker = (*Clock)(nil)

// Clocker provides the current time. Loans and lending events are stamped with it.
type Clocker interface {
	Now() time.Time
}

// TickerClocker is a Clocker with tickers. It satisfies zapcore.Clock
// so the logger and the lending records read the same clock.
type TickerClocker interface {
	Clocker
	NewTicker(time.Duration) *time.Ticker
}

// Clock reads the wall clock in a fixed location. Production runs in UTC,
// development uses the local zone for readable logs. Stored lending
// timestamps are converted to UTC whatever the location.
type Clock struct {
	loc *time.Location
}

// NewClock returns a Clock in UTC for production and in Local otherwise.
func NewClock(isProd bool) *Clock {
	if isProd {
		return &Clock{loc: time.UTC}
	}
	return &Clock{loc: time.Local}
}

func (ck *Clock) Now() time.Time {
	return time.Now().In(ck.loc)
}

func (ck *Clock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// Location reports the zone used by Now.
func (ck *Clock) Location() *time.Location {
	return ck.loc
}
