// Package candle builds fixed-window OHLC candles from ticks and resamples
// candle series to coarser intervals.
package candle

import (
	"time"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// Builder folds ticks into one in-progress candle. Non-positive prices are
// discarded. Not safe for concurrent use; the controller loop is the single
// writer.
type Builder struct {
	open      float64
	high      float64
	low       float64
	last      float64
	startedAt time.Time
	count     int
}

// NewBuilder creates an empty candle builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Ingest folds one tick into the in-progress candle. Ticks with a
// non-positive price are ignored.
func (b *Builder) Ingest(price float64, ts time.Time) {
	if price <= 0 {
		return
	}

	if b.count == 0 {
		b.open = price
		b.high = price
		b.low = price
		b.startedAt = ts
	} else {
		if price > b.high {
			b.high = price
		}

		if price < b.low {
			b.low = price
		}
	}

	b.last = price
	b.count++
}

// HasData reports whether any tick has been folded since the last Close.
func (b *Builder) HasData() bool {
	return b.count > 0
}

// Current returns a snapshot of the in-progress candle without closing it.
// Used to preview indicator state against the partial window.
func (b *Builder) Current() (types.Candle, bool) {
	if b.count == 0 {
		return types.Candle{}, false
	}

	return types.Candle{
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.last,
		Timestamp: b.startedAt,
	}, true
}

// Close finalizes the in-progress candle and resets the builder for the
// next window. Returns ok=false when no tick arrived in the window.
func (b *Builder) Close() (types.Candle, bool) {
	c, ok := b.Current()
	b.Reset()

	return c, ok
}

// Reset discards the in-progress candle.
func (b *Builder) Reset() {
	*b = Builder{}
}
