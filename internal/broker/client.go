// Package broker talks to the execution venue: quotes, contract
// resolution, order placement, and fill confirmation. The control loop is
// the only caller; every method takes a context and these calls are its
// only suspension points.
package broker

import (
	"context"
	"math"
	"time"

	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/types"
)

// ExecutionClient is the execution/quote collaborator.
type ExecutionClient interface {
	// GetIndexPrice returns the index last traded price.
	GetIndexPrice(ctx context.Context, index contract.IndexSpec) (float64, error)

	// GetContractPrices returns the index price and the last traded price
	// of each requested contract in one round trip.
	GetContractPrices(ctx context.Context, index contract.IndexSpec, securityIDs []string) (float64, map[string]float64, error)

	// ResolveNearestExpiry returns the nearest listed expiry date.
	ResolveNearestExpiry(ctx context.Context, index contract.IndexSpec) (string, error)

	// ResolveContractID resolves a strike/kind/expiry to a venue security
	// id.
	ResolveContractID(ctx context.Context, index contract.IndexSpec, strike int, kind types.OptionKind, expiry string) (string, error)

	// SubmitOrder places a market order.
	SubmitOrder(ctx context.Context, securityID string, side types.OrderSide, qty int) (types.OrderResult, error)

	// ConfirmFill polls the order until it fills, rejects, or the timeout
	// lapses. A timeout is reported in the status, not as an error.
	ConfirmFill(ctx context.Context, orderID, securityID string, qty int, timeout time.Duration) (types.FillStatus, error)
}

// tickSize is the option premium tick.
const tickSize = 0.05

// RoundTick rounds a premium to the exchange tick.
func RoundTick(price float64) float64 {
	rounded := math.Round(price/tickSize) * tickSize

	return math.Round(rounded*100) / 100
}
