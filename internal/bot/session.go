// Package bot runs the live trading control loop: one goroutine owns all
// mutable trading state and suspends only on calls into the execution
// venue.
package bot

import (
	"time"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// Session boundaries in exchange-local time.
var (
	marketOpen  = clock{9, 15}
	entryStart  = clock{9, 25}
	entryEnd    = clock{15, 10}
	squareOffAt = clock{15, 25}
	marketClose = clock{15, 30}
)

type clock struct {
	hour, minute int
}

func (c clock) minutes() int {
	return c.hour*60 + c.minute
}

func minuteOfDay(t time.Time) int {
	ist := t.In(types.IST)

	return ist.Hour()*60 + ist.Minute()
}

// isMarketOpen reports whether the exchange session is live.
func isMarketOpen(t time.Time) bool {
	ist := t.In(types.IST)
	if ist.Weekday() == time.Saturday || ist.Weekday() == time.Sunday {
		return false
	}

	m := minuteOfDay(t)

	return m >= marketOpen.minutes() && m < marketClose.minutes()
}

// inEntryWindow reports whether new entries are allowed at this time.
func inEntryWindow(t time.Time) bool {
	m := minuteOfDay(t)

	return m >= entryStart.minutes() && m < entryEnd.minutes()
}

// isSquareOffTime reports whether any open position must be force-closed.
func isSquareOffTime(t time.Time) bool {
	return isMarketOpen(t) && minuteOfDay(t) >= squareOffAt.minutes()
}

// tradingDay formats the IST calendar day used for daily resets.
func tradingDay(t time.Time) string {
	return t.In(types.IST).Format("2006-01-02")
}
