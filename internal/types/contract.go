package types

import "time"

// OptionKind is the option contract kind. Both kinds are always held long
// (bought), so premium profit is price minus entry for either kind.
type OptionKind string

const (
	OptionKindCE OptionKind = "CE"
	OptionKindPE OptionKind = "PE"
)

// ContractIdentity identifies one concrete option contract.
type ContractIdentity struct {
	Strike     int        `yaml:"strike" json:"strike"`
	Kind       OptionKind `yaml:"kind" json:"kind"`
	Expiry     string     `yaml:"expiry" json:"expiry"`
	SecurityID string     `yaml:"security_id" json:"security_id"`
}

// Position is the single open position. Created only after a confirmed
// entry fill, destroyed only after a confirmed exit fill.
type Position struct {
	TradeID    string           `yaml:"trade_id" json:"trade_id"`
	Contract   ContractIdentity `yaml:"contract" json:"contract"`
	EntryPrice float64          `yaml:"entry_price" json:"entry_price"`
	EntryTime  time.Time        `yaml:"entry_time" json:"entry_time"`
	Quantity   int              `yaml:"quantity" json:"quantity"`
	IndexName  string           `yaml:"index_name" json:"index_name"`
}

// OrderSide is the broker order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderResult is the broker's response to an order submission.
type OrderResult struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

// FillStatus is the outcome of polling an order for fill confirmation.
type FillStatus struct {
	Filled   bool    `json:"filled"`
	AvgPrice float64 `json:"avg_price"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
}
