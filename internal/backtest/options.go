package backtest

import (
	"time"

	"github.com/strikebot-labs/strikebot/internal/config"
)

// ReplayOptions builds replay options from the bot configuration, so the
// replayer exercises the same strategy and risk knobs the live loop runs.
func ReplayOptions(cfg *config.Config, resampleToSeconds int, closeAtEnd bool) Options {
	return Options{
		IndexName:    cfg.Trading.Index,
		StrategyMode: cfg.Strategy.Mode,
		Risk:         cfg.Risk.Params(),

		SuperTrendPeriod:     cfg.Strategy.SuperTrendPeriod,
		SuperTrendMultiplier: cfg.Strategy.SuperTrendMultiplier,
		MACDFastPeriod:       cfg.Strategy.MACDFastPeriod,
		MACDSlowPeriod:       cfg.Strategy.MACDSlowPeriod,
		MACDSignalPeriod:     cfg.Strategy.MACDSignalPeriod,
		ADXPeriod:            cfg.Strategy.ADXPeriod,

		AgentADXMin:       cfg.Strategy.AgentADXMin,
		AgentWaveResetAbs: cfg.Strategy.AgentWaveResetAbs,
		HistogramBandLow:  cfg.Strategy.HistogramBandLow,
		HistogramBandHigh: cfg.Strategy.HistogramBandHigh,

		ResampleTo: time.Duration(resampleToSeconds) * time.Second,
		CloseAtEnd: closeAtEnd,
	}
}
