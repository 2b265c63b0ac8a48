// Package risk implements the protective-exit state machine for the single
// open position: initial stop, profit lock, step trailing, target, per-trade
// and daily loss caps. All thresholds are in premium points; profit is
// always price minus entry since both option kinds are held long.
package risk

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// StopMode selects how the protective stop level is advanced.
type StopMode string

const (
	// StopModeStep raises the stop in fixed increments once profit clears
	// the trail-start threshold.
	StopModeStep StopMode = "step"
	// StopModeBand anchors the stop to the trend-band value each candle
	// close, with an optional profit lock and step overlay on top.
	StopModeBand StopMode = "band"
)

// Params are the risk thresholds. None means the corresponding check is
// disabled; a Some zero is a real zero threshold, not a disable.
type Params struct {
	StopMode          StopMode                 `json:"stop_mode"`
	InitialStopPoints optional.Option[float64] `json:"initial_stop_points"`
	MaxLossPerTrade   optional.Option[float64] `json:"max_loss_per_trade"`
	TargetPoints      optional.Option[float64] `json:"target_points"`
	TrailStartProfit  optional.Option[float64] `json:"trail_start_profit"`
	TrailStep         optional.Option[float64] `json:"trail_step"`
	LockPoints        optional.Option[float64] `json:"lock_points"`
	DailyMaxLoss      optional.Option[float64] `json:"daily_max_loss"`
	MaxTradesPerDay   optional.Option[int]     `json:"max_trades_per_day"`
}

// Validate rejects parameter combinations that cannot work.
func (p Params) Validate() error {
	if p.StopMode != StopModeStep && p.StopMode != StopModeBand {
		return errors.Newf(errors.ErrCodeInvalidRiskMode, "unknown stop mode %q", p.StopMode)
	}

	if p.TrailStep.IsSome() && p.TrailStep.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "trail step must be positive, got %f", p.TrailStep.Unwrap())
	}

	if p.TrailStartProfit.IsSome() != p.TrailStep.IsSome() {
		return errors.New(errors.ErrCodeInvalidThreshold, "trail_start_profit and trail_step must be configured together")
	}

	for name, v := range map[string]optional.Option[float64]{
		"initial_stop_points": p.InitialStopPoints,
		"max_loss_per_trade":  p.MaxLossPerTrade,
		"target_points":       p.TargetPoints,
		"daily_max_loss":      p.DailyMaxLoss,
		"lock_points":         p.LockPoints,
	} {
		if v.IsSome() && v.Unwrap() < 0 {
			return errors.Newf(errors.ErrCodeInvalidThreshold, "%s must not be negative, got %f", name, v.Unwrap())
		}
	}

	return nil
}

// State tracks the protective levels of the one open position.
type State struct {
	EntryPrice    float64
	HighestProfit float64

	stop    optional.Option[float64]
	trailed bool
}

// Stop returns the current stop price, if any stop is active.
func (s *State) Stop() optional.Option[float64] {
	return s.stop
}

// Trailed reports whether the stop has been raised past its initial level.
func (s *State) Trailed() bool {
	return s.trailed
}

// raiseStop applies a candidate stop price, never lowering the level.
func (s *State) raiseStop(level float64) {
	if s.stop.IsNone() {
		s.stop = optional.Some(level)

		return
	}

	if level > s.stop.Unwrap() {
		s.stop = optional.Some(level)
		s.trailed = true
	}
}

// Manager owns the risk state for the trading day: realized PnL, trade
// count, the halt latch, and the per-position State. Written only by the
// control loop.
type Manager struct {
	params Params

	dailyRealized float64
	tradeCount    int
	halted        bool

	state *State
}

// NewManager creates a risk manager.
func NewManager(params Params) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfiguration, "invalid risk parameters")
	}

	return &Manager{params: params}, nil
}

// Params returns the active thresholds.
func (m *Manager) Params() Params {
	return m.params
}

// UpdateParams replaces the thresholds. Invalid values are rejected and the
// prior parameters are retained.
func (m *Manager) UpdateParams(params Params) error {
	if err := params.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfiguration, "invalid risk parameters")
	}

	m.params = params

	return nil
}

// Halted reports whether the daily halt latch is set.
func (m *Manager) Halted() bool {
	return m.halted
}

// Halt sets the daily halt latch. Cleared only by ResetDay.
func (m *Manager) Halt() {
	m.halted = true
}

// CanEnter reports whether a new entry is permitted: not halted and under
// the daily trade cap.
func (m *Manager) CanEnter() bool {
	if m.halted {
		return false
	}

	if m.params.MaxTradesPerDay.IsSome() && m.tradeCount >= m.params.MaxTradesPerDay.Unwrap() {
		return false
	}

	return true
}

// DailyRealizedPnL returns the sum of closed-trade points for the day.
func (m *Manager) DailyRealizedPnL() float64 {
	return m.dailyRealized
}

// TradeCountToday returns the count of confirmed entries for the day.
func (m *Manager) TradeCountToday() int {
	return m.tradeCount
}

// State returns the per-position state, nil while flat.
func (m *Manager) State() *State {
	return m.state
}

// ResetDay clears the daily counters and halt latch at session start.
func (m *Manager) ResetDay() {
	m.dailyRealized = 0
	m.tradeCount = 0
	m.halted = false
}

// OnConfirmedEntry initializes per-position state after an entry fill and
// counts the trade. The initial stop, if configured, sits below entry.
func (m *Manager) OnConfirmedEntry(entryPrice float64) {
	s := &State{EntryPrice: entryPrice}
	if m.params.InitialStopPoints.IsSome() {
		s.stop = optional.Some(entryPrice - m.params.InitialStopPoints.Unwrap())
	}

	m.state = s
	m.tradeCount++
}

// OnConfirmedExit books the realized points, clears per-position state, and
// latches the halt if the daily cap is breached.
func (m *Manager) OnConfirmedExit(pnlPoints float64) {
	m.dailyRealized += pnlPoints
	m.state = nil

	if m.params.DailyMaxLoss.IsSome() && m.dailyRealized < -m.params.DailyMaxLoss.Unwrap() {
		m.halted = true
	}
}

// CheckTick evaluates the protective exits against one observed price.
// First match wins: daily loss cap, per-trade loss cap, target, then the
// trailing stop. Returns the exit reason, or ok=false to stay in.
func (m *Manager) CheckTick(price float64) (string, bool) {
	if m.state == nil {
		return "", false
	}

	profit := price - m.state.EntryPrice
	m.observeProfit(profit)

	if m.params.DailyMaxLoss.IsSome() && m.dailyRealized+profit < -m.params.DailyMaxLoss.Unwrap() {
		m.halted = true

		return types.ExitReasonDailyMaxLoss, true
	}

	if m.params.MaxLossPerTrade.IsSome() && -profit > m.params.MaxLossPerTrade.Unwrap() {
		return types.ExitReasonMaxLossPerTrade, true
	}

	if m.params.TargetPoints.IsSome() && profit >= m.params.TargetPoints.Unwrap() {
		return types.ExitReasonTargetHit, true
	}

	if m.state.stop.IsSome() && price <= m.state.stop.Unwrap() {
		if m.state.trailed {
			return types.ExitReasonTrailingSLHit, true
		}

		return types.ExitReasonStoplossHit, true
	}

	return "", false
}

// OnBandValue anchors the stop to the trend-band value at candle close in
// band mode, then layers the profit lock and the step overlay on top. All
// candidates are raise-only.
func (m *Manager) OnBandValue(bandValue float64) {
	if m.state == nil || m.params.StopMode != StopModeBand {
		return
	}

	m.state.raiseStop(bandValue)

	if m.params.LockPoints.IsSome() && m.state.HighestProfit >= m.params.LockPoints.Unwrap() {
		m.state.raiseStop(m.state.EntryPrice + m.params.LockPoints.Unwrap())
	}

	if level, ok := m.stepLevel(); ok {
		m.state.raiseStop(level)
	}
}

// observeProfit records a new favorable excursion and, in step mode,
// advances the trailing stop.
func (m *Manager) observeProfit(profit float64) {
	if profit > m.state.HighestProfit {
		m.state.HighestProfit = profit
	}

	if m.params.StopMode != StopModeStep {
		return
	}

	if level, ok := m.stepLevel(); ok {
		m.state.raiseStop(level)
	}
}

// stepLevel computes the step-trailing stop price from the highest
// favorable excursion, or ok=false before the trail has started.
func (m *Manager) stepLevel() (float64, bool) {
	if m.params.TrailStartProfit.IsNone() || m.params.TrailStep.IsNone() {
		return 0, false
	}

	start := m.params.TrailStartProfit.Unwrap()
	if m.state.HighestProfit < start {
		return 0, false
	}

	step := m.params.TrailStep.Unwrap()
	steps := math.Floor((m.state.HighestProfit - start) / step)

	return m.state.EntryPrice + steps*step, true
}

// CheckCandle evaluates the protective exits against one closed candle's
// range, worst case first: loss-side triggers are checked against the low
// before the target is checked against the high. Level-triggered exits
// report the exact computed level as the fill price; only after no trigger
// fires is the favorable excursion advanced from the high.
func (m *Manager) CheckCandle(c types.Candle) (float64, string, bool) {
	if m.state == nil {
		return 0, "", false
	}

	entry := m.state.EntryPrice

	if m.params.DailyMaxLoss.IsSome() {
		level := entry - m.params.DailyMaxLoss.Unwrap() - m.dailyRealized
		if c.Low < level {
			m.halted = true

			return level, types.ExitReasonDailyMaxLoss, true
		}
	}

	if m.params.MaxLossPerTrade.IsSome() {
		level := entry - m.params.MaxLossPerTrade.Unwrap()
		if c.Low < level {
			return level, types.ExitReasonMaxLossPerTrade, true
		}
	}

	if m.state.stop.IsSome() && c.Low <= m.state.stop.Unwrap() {
		reason := types.ExitReasonStoplossHit
		if m.state.trailed {
			reason = types.ExitReasonTrailingSLHit
		}

		return m.state.stop.Unwrap(), reason, true
	}

	if m.params.TargetPoints.IsSome() {
		level := entry + m.params.TargetPoints.Unwrap()
		if c.High >= level {
			return level, types.ExitReasonTargetHit, true
		}
	}

	m.observeProfit(c.High - entry)

	return 0, "", false
}
