// Package indicator implements the incremental technical indicators used by
// the decision policies. Each indicator consumes one closed candle at a time,
// holds bounded internal history, and reports not-ready until its warm-up
// period has been consumed.
package indicator

import (
	"math"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// maxCandleHistory caps stored candle history. Only the last two states
// matter for correctness; the cap bounds memory.
const maxCandleHistory = 100

// SuperTrendValue is one emitted trend-band state.
type SuperTrendValue struct {
	Value      float64
	Upper      float64
	Lower      float64
	Direction  types.Direction
}

// SuperTrend is the incremental trend-band indicator. The reported value is
// the final lower band while bullish and the final upper band while bearish.
type SuperTrend struct {
	period     int
	multiplier float64

	candles []types.Candle
	atr     float64
	seeded  bool
	last    *SuperTrendValue
}

// NewSuperTrend creates a SuperTrend indicator.
func NewSuperTrend(period int, multiplier float64) (*SuperTrend, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	if multiplier <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidMultiplier, "multiplier must be positive, got %f", multiplier)
	}

	return &SuperTrend{
		period:     period,
		multiplier: multiplier,
		candles:    nil,
		atr:        0,
		seeded:     false,
		last:       nil,
	}, nil
}

// Reset clears all internal state back to empty/not-ready.
func (s *SuperTrend) Reset() {
	s.candles = nil
	s.atr = 0
	s.seeded = false
	s.last = nil
}

// Ready reports whether the indicator has consumed enough candles to emit.
func (s *SuperTrend) Ready() bool {
	return s.last != nil
}

// Direction returns the current trend direction, or DirectionUnknown before
// warm-up.
func (s *SuperTrend) Direction() types.Direction {
	if s.last == nil {
		return types.DirectionUnknown
	}

	return s.last.Direction
}

// Last returns the most recently emitted state.
func (s *SuperTrend) Last() (SuperTrendValue, bool) {
	if s.last == nil {
		return SuperTrendValue{}, false
	}

	return *s.last, true
}

// Update consumes one closed candle and returns the emitted state, or
// ok=false while still warming up.
func (s *SuperTrend) Update(c types.Candle) (SuperTrendValue, bool) {
	value, atr, ok := s.step(c)

	s.candles = append(s.candles, c)
	if len(s.candles) > maxCandleHistory {
		s.candles = s.candles[len(s.candles)-maxCandleHistory:]
	}

	if ok {
		s.atr = atr
		s.seeded = true
		v := value
		s.last = &v
	}

	return value, ok
}

// Peek previews the state a candidate candle would produce without mutating
// committed state. Used to evaluate an in-progress candle.
func (s *SuperTrend) Peek(c types.Candle) (SuperTrendValue, bool) {
	value, _, ok := s.step(c)

	return value, ok
}

// step computes the next state from committed history plus one new candle.
func (s *SuperTrend) step(c types.Candle) (SuperTrendValue, float64, bool) {
	n := len(s.candles)
	if n+1 < s.period {
		return SuperTrendValue{}, s.atr, false
	}

	tr := c.High - c.Low
	if n > 0 {
		prevClose := s.candles[n-1].Close
		tr = math.Max(tr, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	var atr float64
	if !s.seeded {
		atr = s.bootstrapATR(c)
	} else {
		atr = (s.atr*float64(s.period-1) + tr) / float64(s.period)
	}

	hl2 := (c.High + c.Low) / 2
	basicUpper := hl2 + s.multiplier*atr
	basicLower := hl2 - s.multiplier*atr

	var (
		finalUpper, finalLower float64
		direction              types.Direction
	)

	if s.last == nil {
		finalUpper = basicUpper
		finalLower = basicLower

		if c.Close > finalUpper {
			direction = types.DirectionBullish
		} else {
			direction = types.DirectionBearish
		}
	} else {
		prevClose := s.candles[n-1].Close

		// Final bands carry forward unless the basic band tightens or the
		// prior close already crossed the prior final band.
		if basicLower > s.last.Lower || prevClose < s.last.Lower {
			finalLower = basicLower
		} else {
			finalLower = s.last.Lower
		}

		if basicUpper < s.last.Upper || prevClose > s.last.Upper {
			finalUpper = basicUpper
		} else {
			finalUpper = s.last.Upper
		}

		// Direction flips only when the close crosses the opposite band.
		if s.last.Direction == types.DirectionBullish {
			if c.Close < finalLower {
				direction = types.DirectionBearish
			} else {
				direction = types.DirectionBullish
			}
		} else {
			if c.Close > finalUpper {
				direction = types.DirectionBullish
			} else {
				direction = types.DirectionBearish
			}
		}
	}

	value := finalLower
	if direction == types.DirectionBearish {
		value = finalUpper
	}

	return SuperTrendValue{
		Value:     value,
		Upper:     finalUpper,
		Lower:     finalLower,
		Direction: direction,
	}, atr, true
}

// bootstrapATR seeds the ATR as the simple mean of true range over the most
// recent period candles, candidate included.
func (s *SuperTrend) bootstrapATR(c types.Candle) float64 {
	window := make([]types.Candle, 0, len(s.candles)+1)
	window = append(window, s.candles...)
	window = append(window, c)

	start := len(window) - s.period
	if start < 0 {
		start = 0
	}

	var sum float64

	count := 0

	for i := start; i < len(window); i++ {
		tr := window[i].High - window[i].Low
		if i > 0 {
			prevClose := window[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(window[i].High-prevClose), math.Abs(window[i].Low-prevClose)))
		}

		sum += tr
		count++
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}
