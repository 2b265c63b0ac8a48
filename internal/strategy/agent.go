package strategy

import (
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// AgentState is the persisted latch of the wave-lock agent. The lock
// prevents re-entry inside the same momentum wave until the oscillator has
// decayed near zero.
type AgentState struct {
	WaveLock      bool             `json:"wave_lock"`
	LastTradeSide types.OptionKind `json:"last_trade_side,omitempty"`
}

// Agent is the threshold+momentum decision policy: enter only on a trend
// flip with sufficient directional strength and the oscillator confirming
// the side; exit on a counter-flip or momentum decay.
type Agent struct {
	adxMin         float64
	resetThreshold float64

	state AgentState
}

// NewAgent creates a wave-lock agent.
func NewAgent(adxMin, resetThreshold float64) (*Agent, error) {
	if resetThreshold < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "reset threshold must not be negative, got %f", resetThreshold)
	}

	return &Agent{adxMin: adxMin, resetThreshold: resetThreshold}, nil
}

// State returns the current lock state for persistence.
func (a *Agent) State() AgentState {
	return a.state
}

// Restore replaces the lock state, typically from durable storage at
// startup.
func (a *Agent) Restore(state AgentState) {
	a.state = state
}

// Reset clears the lock and the recorded side.
func (a *Agent) Reset() {
	a.state = AgentState{}
}

// Decide evaluates one closed candle. The lock reset runs unconditionally
// before any other rule.
func (a *Agent) Decide(snap Snapshot) types.Action {
	if a.state.WaveLock && snap.MACDCurrent.IsSome() {
		if abs(snap.MACDCurrent.Unwrap()) < a.resetThreshold {
			a.state.WaveLock = false
		}
	}

	if snap.Direction == types.DirectionUnknown {
		return types.ActionHold
	}

	if snap.ADX.IsNone() || snap.MACDCurrent.IsNone() || snap.MACDPrevious.IsNone() {
		return types.ActionHold
	}

	macd := snap.MACDCurrent.Unwrap()
	prev := snap.MACDPrevious.Unwrap()

	if !snap.InPosition {
		if a.state.WaveLock || !snap.Flipped || snap.ADX.Unwrap() < a.adxMin {
			return types.ActionHold
		}

		if snap.Direction == types.DirectionBullish {
			if macd > 0 && macd > prev {
				a.state.WaveLock = true
				a.state.LastTradeSide = types.OptionKindCE

				return types.ActionEnterCE
			}

			return types.ActionHold
		}

		if macd < 0 && macd < prev {
			a.state.WaveLock = true
			a.state.LastTradeSide = types.OptionKindPE

			return types.ActionEnterPE
		}

		return types.ActionHold
	}

	if snap.Flipped {
		return types.ActionExit
	}

	side := a.state.LastTradeSide
	if side == "" {
		side = snap.PositionKind
	}

	// Momentum decay: the wave that carried the entry is fading.
	if side == types.OptionKindCE && macd < prev {
		return types.ActionExit
	}

	if side == types.OptionKindPE && macd > prev {
		return types.ActionExit
	}

	return types.ActionHold
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
