package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BacktestMetrics summarizes a replay run over closed trades only.
type BacktestMetrics struct {
	// Count of closed trades.
	TotalTrades int `yaml:"total_trades" json:"total_trades"`
	// Sum of points PnL across closed trades.
	TotalPnLPoints float64 `yaml:"total_pnl_points" json:"total_pnl_points"`
	// Percentage of closed trades with positive points PnL.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// Average points PnL of winning trades.
	AvgWin float64 `yaml:"avg_win" json:"avg_win"`
	// Average absolute points PnL of losing trades.
	AvgLoss float64 `yaml:"avg_loss" json:"avg_loss"`
	// Maximum running peak-to-trough drop of the cumulative PnL equity
	// curve. The curve starts at 0 with one point appended per closed trade.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
}

// BacktestResult is the full replay output: the closed-trade ledger plus
// summary metrics and run metadata.
type BacktestResult struct {
	StrategyMode string          `yaml:"strategy_mode" json:"strategy_mode"`
	CandleCount  int             `yaml:"candle_count" json:"candle_count"`
	Metrics      BacktestMetrics `yaml:"metrics" json:"metrics"`
	Trades       []TradeRecord   `yaml:"trades" json:"trades"`
}

// WriteBacktestResult writes a replay result to a YAML file.
func WriteBacktestResult(path string, result BacktestResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest result to file: %w", err)
	}

	return nil
}
