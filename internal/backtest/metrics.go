// Package backtest replays stored candles through the exact live decision
// and risk kernel and reports the resulting trade ledger and summary
// metrics.
package backtest

import "github.com/strikebot-labs/strikebot/internal/types"

// ComputeMetrics summarizes a closed-trade ledger. Drawdown is the maximum
// running peak-to-trough drop of the cumulative points equity curve, which
// starts at zero and grows one point per closed trade.
func ComputeMetrics(trades []types.TradeRecord) types.BacktestMetrics {
	m := types.BacktestMetrics{TotalTrades: len(trades)}

	var (
		wins, losses       int
		winSum, lossSum    float64
		equity, peak, draw float64
	)

	for _, t := range trades {
		m.TotalPnLPoints += t.PnLPoints

		if t.PnLPoints > 0 {
			wins++
			winSum += t.PnLPoints
		} else {
			losses++
			lossSum += -t.PnLPoints
		}

		equity += t.PnLPoints
		if equity > peak {
			peak = equity
		}

		if peak-equity > draw {
			draw = peak - equity
		}
	}

	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades)) * 100
	}

	if wins > 0 {
		m.AvgWin = winSum / float64(wins)
	}

	if losses > 0 {
		m.AvgLoss = lossSum / float64(losses)
	}

	m.MaxDrawdown = draw

	return m
}
