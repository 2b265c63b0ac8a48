package types

import "time"

// Exit reasons recorded on closed trades. The per-tick risk check uses a
// strict priority order: daily loss cap, per-trade loss cap, target,
// trailing stop.
const (
	ExitReasonDailyMaxLoss    = "Daily Max Loss"
	ExitReasonMaxLossPerTrade = "Max Loss Per Trade"
	ExitReasonTargetHit       = "Target Hit"
	ExitReasonTrailingSLHit   = "Trailing SL Hit"
	ExitReasonStoplossHit     = "Stoploss Hit"
	ExitReasonTrendReversal   = "SuperTrend Reversal"
	ExitReasonMomentumDecay   = "Momentum Decay"
	ExitReasonReverseEntry    = "Reverse Entry"
	ExitReasonForceSquareOff  = "Force Square-off"
	ExitReasonEndOfData       = "EOD"
)

// TradeRecord is one row of the trade ledger. Entry fields are written when
// a fill is confirmed; exit fields are filled in when the position closes.
type TradeRecord struct {
	TradeID    string     `yaml:"trade_id" json:"trade_id"`
	IndexName  string     `yaml:"index_name" json:"index_name"`
	Kind       OptionKind `yaml:"kind" json:"kind"`
	Strike     int        `yaml:"strike" json:"strike"`
	Expiry     string     `yaml:"expiry" json:"expiry"`
	EntryTime  time.Time  `yaml:"entry_time" json:"entry_time"`
	ExitTime   time.Time  `yaml:"exit_time" json:"exit_time"`
	EntryPrice float64    `yaml:"entry_price" json:"entry_price"`
	ExitPrice  float64    `yaml:"exit_price" json:"exit_price"`
	Quantity   int        `yaml:"quantity" json:"quantity"`
	PnL        float64    `yaml:"pnl" json:"pnl"`
	PnLPoints  float64    `yaml:"pnl_points" json:"pnl_points"`
	ExitReason string     `yaml:"exit_reason" json:"exit_reason"`
	Mode       string     `yaml:"mode" json:"mode"`
	Closed     bool       `yaml:"closed" json:"closed"`
}

// Action is a decision-policy output.
type Action int

const (
	ActionHold Action = iota
	ActionEnterCE
	ActionEnterPE
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionEnterCE:
		return "ENTER_CE"
	case ActionEnterPE:
		return "ENTER_PE"
	case ActionExit:
		return "EXIT"
	default:
		return "HOLD"
	}
}
