package strategy

import (
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// HistogramPolicy is the per-contract oscillator-slope policy. Entry needs
// a bullish trend on the contract's own candles, the last three histogram
// values strictly rising, and the latest strictly inside the open interval
// (low, high). Exit fires when the contract's trend turns bearish. The
// selector decides which eligible contract is actually taken.
type HistogramPolicy struct {
	low  float64
	high float64
}

// NewHistogramPolicy creates a slope policy with the given open interval
// for the latest histogram value.
func NewHistogramPolicy(low, high float64) (*HistogramPolicy, error) {
	if low >= high {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "histogram band low %f must be below high %f", low, high)
	}

	return &HistogramPolicy{low: low, high: high}, nil
}

func (p *HistogramPolicy) Reset() {}

// EligibleEntry reports whether the contract qualifies for entry this
// candle.
func (p *HistogramPolicy) EligibleEntry(snap Snapshot) bool {
	if snap.Direction != types.DirectionBullish {
		return false
	}

	hist := snap.HistogramHistory
	if len(hist) < 3 {
		return false
	}

	hist = hist[len(hist)-3:]
	if !(hist[0] < hist[1] && hist[1] < hist[2]) {
		return false
	}

	latest := hist[2]

	return latest > p.low && latest < p.high
}

// ShouldExit reports whether a held contract should be closed this candle.
func (p *HistogramPolicy) ShouldExit(snap Snapshot) bool {
	return snap.Direction == types.DirectionBearish
}

// Decide adapts the per-contract rules to the common policy surface for
// single-contract use: an eligible entry maps to the call side.
func (p *HistogramPolicy) Decide(snap Snapshot) types.Action {
	if snap.InPosition {
		if p.ShouldExit(snap) {
			return types.ActionExit
		}

		return types.ActionHold
	}

	if p.EligibleEntry(snap) {
		return types.ActionEnterCE
	}

	return types.ActionHold
}
