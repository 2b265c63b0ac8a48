package indicator

import (
	"math"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// ADX is the incremental average directional index using Wilder smoothing.
// It needs one candle for seed, period candles of directional movement for
// the smoothed sums, and period DX values for the first ADX emission.
type ADX struct {
	period int

	prev    types.Candle
	hasPrev bool

	dmCount    int
	sumTR      float64
	sumPlusDM  float64
	sumMinusDM float64

	smTR      float64
	smPlusDM  float64
	smMinusDM float64

	dxSum   float64
	dxCount int

	adx   float64
	ready bool
}

// NewADX creates an ADX indicator.
func NewADX(period int) (*ADX, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	return &ADX{period: period}, nil
}

// Reset clears all internal state back to empty/not-ready.
func (a *ADX) Reset() {
	*a = ADX{period: a.period}
}

// Ready reports whether an ADX value has been emitted.
func (a *ADX) Ready() bool {
	return a.ready
}

// Last returns the most recent ADX value.
func (a *ADX) Last() (float64, bool) {
	if !a.ready {
		return 0, false
	}

	return a.adx, true
}

// Update consumes one closed candle and returns the ADX value, or ok=false
// while still warming up.
func (a *ADX) Update(c types.Candle) (float64, bool) {
	if !a.hasPrev {
		a.prev = c
		a.hasPrev = true

		return 0, false
	}

	upMove := c.High - a.prev.High
	downMove := a.prev.Low - c.Low

	var plusDM, minusDM float64
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}

	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-a.prev.Close), math.Abs(c.Low-a.prev.Close)))
	a.prev = c

	a.dmCount++

	if a.dmCount <= a.period {
		a.sumTR += tr
		a.sumPlusDM += plusDM
		a.sumMinusDM += minusDM

		if a.dmCount < a.period {
			return 0, false
		}

		a.smTR = a.sumTR
		a.smPlusDM = a.sumPlusDM
		a.smMinusDM = a.sumMinusDM
	} else {
		a.smTR = a.smTR - a.smTR/float64(a.period) + tr
		a.smPlusDM = a.smPlusDM - a.smPlusDM/float64(a.period) + plusDM
		a.smMinusDM = a.smMinusDM - a.smMinusDM/float64(a.period) + minusDM
	}

	if a.smTR == 0 {
		return 0, false
	}

	plusDI := 100 * a.smPlusDM / a.smTR
	minusDI := 100 * a.smMinusDM / a.smTR

	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0, false
	}

	dx := 100 * math.Abs(plusDI-minusDI) / diSum

	if a.dxCount < a.period {
		a.dxSum += dx
		a.dxCount++

		if a.dxCount < a.period {
			return 0, false
		}

		a.adx = a.dxSum / float64(a.period)
	} else {
		a.adx = (a.adx*float64(a.period-1) + dx) / float64(a.period)
	}

	a.ready = true

	return a.adx, true
}
