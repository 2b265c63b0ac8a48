package backtest

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/candle"
	"github.com/strikebot-labs/strikebot/internal/indicator"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/risk"
	"github.com/strikebot-labs/strikebot/internal/strategy"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// Options configure one replay run. The decision policy and risk knobs are
// the same ones the live loop takes.
type Options struct {
	IndexName    string
	StrategyMode strategy.Mode
	Risk         risk.Params

	SuperTrendPeriod     int
	SuperTrendMultiplier float64
	MACDFastPeriod       int
	MACDSlowPeriod       int
	MACDSignalPeriod     int
	ADXPeriod            int

	AgentADXMin       float64
	AgentWaveResetAbs float64
	HistogramBandLow  float64
	HistogramBandHigh float64

	// ResampleTo buckets the input into a coarser window first; zero
	// replays the candles as given.
	ResampleTo time.Duration

	// CloseAtEnd force-closes an open position at the final close.
	CloseAtEnd bool

	// Progress, when set, is called once per processed candle.
	Progress func(i, total int)
}

// Replayer drives candles through the decision and risk kernel.
type Replayer struct {
	opts   Options
	logger *logger.Logger
}

// NewReplayer validates the options and builds a replayer.
func NewReplayer(opts Options, log *logger.Logger) (*Replayer, error) {
	if opts.SuperTrendPeriod <= 0 || opts.MACDSlowPeriod <= 0 || opts.ADXPeriod <= 0 {
		return nil, errors.New(errors.ErrCodeBacktestConfigError, "indicator periods must be positive")
	}

	if err := opts.Risk.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBacktestConfigError, "invalid risk parameters")
	}

	switch opts.StrategyMode {
	case strategy.ModeAgent, strategy.ModeFlip, strategy.ModeHistogram:
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidStrategyMode, "unknown strategy mode %q", opts.StrategyMode)
	}

	return &Replayer{opts: opts, logger: log}, nil
}

// openTrade is the in-flight replay position.
type openTrade struct {
	kind       types.OptionKind
	entryPrice float64
	entryTime  time.Time
}

// Run replays the candle sequence. The run is pure: indicators, policy
// state, and risk state are rebuilt every call, so replaying the same
// input twice yields identical output.
func (r *Replayer) Run(candles []types.Candle) (types.BacktestResult, error) {
	opts := r.opts

	if opts.ResampleTo > 0 {
		candles = candle.Resample(candles, opts.ResampleTo)
	}

	result := types.BacktestResult{
		StrategyMode: string(opts.StrategyMode),
		CandleCount:  len(candles),
	}

	if len(candles) == 0 {
		result.Metrics = ComputeMetrics(nil)

		return result, nil
	}

	st, err := indicator.NewSuperTrend(opts.SuperTrendPeriod, opts.SuperTrendMultiplier)
	if err != nil {
		return result, err
	}

	macd, err := indicator.NewMACD(opts.MACDFastPeriod, opts.MACDSlowPeriod, opts.MACDSignalPeriod)
	if err != nil {
		return result, err
	}

	adx, err := indicator.NewADX(opts.ADXPeriod)
	if err != nil {
		return result, err
	}

	policy, err := r.buildPolicy()
	if err != nil {
		return result, err
	}

	manager, err := risk.NewManager(opts.Risk)
	if err != nil {
		return result, err
	}

	var (
		trades []types.TradeRecord
		open   *openTrade
	)

	closeTrade := func(price float64, at time.Time, reason string) {
		pnl := price - open.entryPrice
		trades = append(trades, types.TradeRecord{
			TradeID:    fmt.Sprintf("BT-%d", len(trades)+1),
			IndexName:  opts.IndexName,
			Kind:       open.kind,
			EntryTime:  open.entryTime,
			ExitTime:   at,
			EntryPrice: open.entryPrice,
			ExitPrice:  price,
			Quantity:   1,
			PnL:        pnl,
			PnLPoints:  pnl,
			ExitReason: reason,
			Mode:       "backtest",
			Closed:     true,
		})

		manager.OnConfirmedExit(pnl)

		open = nil
	}

	for i, c := range candles {
		prevDirection := st.Direction()

		stValue, stReady := st.Update(c)
		macdValue, macdReady := macd.Update(c)
		adxValue, adxReady := adx.Update(c)

		flipped := stReady && prevDirection != types.DirectionUnknown && stValue.Direction != prevDirection

		if open != nil {
			if price, reason, exited := manager.CheckCandle(c); exited {
				closeTrade(price, c.Timestamp, reason)
			}
		}

		snap := strategy.Snapshot{
			Timestamp:        c.Timestamp,
			Candle:           c,
			Flipped:          flipped,
			HistogramHistory: macd.HistogramHistory(),
			InPosition:       open != nil,
		}

		if stReady {
			snap.Direction = stValue.Direction
		}

		if adxReady {
			snap.ADX = optional.Some(adxValue)
		}

		if macdReady {
			snap.MACDCurrent = optional.Some(macdValue.Line)
			if macdValue.HasPrev {
				snap.MACDPrevious = optional.Some(macdValue.PrevLine)
			}
		}

		if open != nil {
			snap.PositionKind = open.kind
		}

		action := policy.Decide(snap)

		switch {
		case open != nil && action == types.ActionExit:
			reason := types.ExitReasonMomentumDecay
			if flipped || snap.Direction == types.DirectionBearish && opts.StrategyMode == strategy.ModeHistogram {
				reason = types.ExitReasonTrendReversal
			}

			closeTrade(c.Close, c.Timestamp, reason)

		case open == nil && (action == types.ActionEnterCE || action == types.ActionEnterPE):
			if manager.CanEnter() {
				kind := types.OptionKindCE
				if action == types.ActionEnterPE {
					kind = types.OptionKindPE
				}

				open = &openTrade{kind: kind, entryPrice: c.Close, entryTime: c.Timestamp}
				manager.OnConfirmedEntry(c.Close)
			}
		}

		if open != nil && stReady {
			manager.OnBandValue(stValue.Value)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(candles))
		}
	}

	if open != nil && opts.CloseAtEnd {
		last := candles[len(candles)-1]
		closeTrade(last.Close, last.Timestamp, types.ExitReasonEndOfData)
	}

	result.Metrics = ComputeMetrics(trades)
	result.Trades = trades

	r.logger.Info("replay finished",
		zap.String("strategy_mode", string(opts.StrategyMode)),
		zap.Int("candles", result.CandleCount),
		zap.Int("trades", result.Metrics.TotalTrades),
		zap.Float64("total_pnl_points", result.Metrics.TotalPnLPoints))

	return result, nil
}

func (r *Replayer) buildPolicy() (strategy.Policy, error) {
	switch r.opts.StrategyMode {
	case strategy.ModeAgent:
		return strategy.NewAgent(r.opts.AgentADXMin, r.opts.AgentWaveResetAbs)
	case strategy.ModeFlip:
		return strategy.NewFlipPolicy(), nil
	default:
		return strategy.NewHistogramPolicy(r.opts.HistogramBandLow, r.opts.HistogramBandHigh)
	}
}
