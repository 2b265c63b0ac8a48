package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

const (
	// Synthetic time value at the money, decaying linearly to zero at
	// this distance from the strike.
	atmTimeValue     = 150.0
	timeValueHorizon = 500.0
)

// SynthesizePremium estimates an option premium from the index price alone:
// intrinsic value plus a distance-decayed time value, rounded to tick and
// floored at one tick. Used when no real quote exists for a contract.
func SynthesizePremium(indexPrice float64, strike int, kind types.OptionKind) float64 {
	var intrinsic float64
	if kind == types.OptionKindCE {
		intrinsic = math.Max(0, indexPrice-float64(strike))
	} else {
		intrinsic = math.Max(0, float64(strike)-indexPrice)
	}

	distance := math.Abs(indexPrice - float64(strike))
	timeValue := atmTimeValue * math.Max(0, 1-distance/timeValueHorizon)

	return math.Max(tickSize, RoundTick(intrinsic+timeValue))
}

// PaperClient is the simulated execution venue. Quotes and contract
// resolution delegate to a real client when one is configured; otherwise
// premiums are synthesized and identities are fabricated locally. Orders
// always fill instantly at the last known price.
type PaperClient struct {
	inner  ExecutionClient
	logger *logger.Logger

	mu         sync.Mutex
	contracts  map[string]types.ContractIdentity
	lastPrices map[string]float64
	lastIndex  float64
}

// NewPaperClient creates a paper venue. inner may be nil when no broker
// credentials are configured; index quotes then fail until a price is fed
// another way, but synthesis and fills still work.
func NewPaperClient(inner ExecutionClient, log *logger.Logger) *PaperClient {
	return &PaperClient{
		inner:      inner,
		logger:     log,
		contracts:  make(map[string]types.ContractIdentity),
		lastPrices: make(map[string]float64),
	}
}

func (c *PaperClient) GetIndexPrice(ctx context.Context, index contract.IndexSpec) (float64, error) {
	if c.inner == nil {
		return 0, errors.New(errors.ErrCodeQuoteFailed, "paper mode has no quote source configured")
	}

	price, err := c.inner.GetIndexPrice(ctx, index)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.lastIndex = price
	c.mu.Unlock()

	return price, nil
}

func (c *PaperClient) GetContractPrices(ctx context.Context, index contract.IndexSpec, securityIDs []string) (float64, map[string]float64, error) {
	var (
		indexPrice float64
		prices     map[string]float64
	)

	if c.inner != nil {
		var err error

		indexPrice, prices, err = c.inner.GetContractPrices(ctx, index, securityIDs)
		if err != nil {
			return 0, nil, err
		}
	} else {
		c.mu.Lock()
		indexPrice = c.lastIndex
		c.mu.Unlock()

		if indexPrice <= 0 {
			return 0, nil, errors.New(errors.ErrCodeQuoteFailed, "paper mode has no quote source configured")
		}

		prices = make(map[string]float64, len(securityIDs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastIndex = indexPrice

	// Fill quote gaps with synthesized premiums for known contracts.
	for _, id := range securityIDs {
		if _, ok := prices[id]; ok {
			continue
		}

		identity, known := c.contracts[id]
		if !known {
			continue
		}

		prices[id] = SynthesizePremium(indexPrice, identity.Strike, identity.Kind)
	}

	for id, price := range prices {
		c.lastPrices[id] = price
	}

	return indexPrice, prices, nil
}

func (c *PaperClient) ResolveNearestExpiry(ctx context.Context, index contract.IndexSpec) (string, error) {
	if c.inner != nil {
		return c.inner.ResolveNearestExpiry(ctx, index)
	}

	return index.FallbackExpiry(time.Now()), nil
}

func (c *PaperClient) ResolveContractID(ctx context.Context, index contract.IndexSpec, strike int, kind types.OptionKind, expiry string) (string, error) {
	id := ""

	if c.inner != nil {
		resolved, err := c.inner.ResolveContractID(ctx, index, strike, kind, expiry)
		if err == nil {
			id = resolved
		} else {
			c.logger.Warn("contract resolution failed, using synthetic identity",
				zap.String("index", index.Name),
				zap.Int("strike", strike),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}

	if id == "" {
		id = fmt.Sprintf("PAPER-%s-%d-%s-%s", index.Name, strike, kind, expiry)
	}

	c.mu.Lock()
	c.contracts[id] = types.ContractIdentity{Strike: strike, Kind: kind, Expiry: expiry, SecurityID: id}
	c.mu.Unlock()

	return id, nil
}

// SubmitOrder accepts every order immediately.
func (c *PaperClient) SubmitOrder(ctx context.Context, securityID string, side types.OrderSide, qty int) (types.OrderResult, error) {
	orderID := "PAPER-" + uuid.NewString()

	c.logger.Info("paper order accepted",
		zap.String("order_id", orderID),
		zap.String("security_id", securityID),
		zap.String("side", string(side)),
		zap.Int("qty", qty))

	return types.OrderResult{Status: "success", OrderID: orderID}, nil
}

// ConfirmFill fills instantly at the last known price for the contract.
func (c *PaperClient) ConfirmFill(ctx context.Context, orderID, securityID string, qty int, timeout time.Duration) (types.FillStatus, error) {
	c.mu.Lock()
	price, ok := c.lastPrices[securityID]

	if !ok {
		if identity, known := c.contracts[securityID]; known && c.lastIndex > 0 {
			price = SynthesizePremium(c.lastIndex, identity.Strike, identity.Kind)
			ok = true
		}
	}
	c.mu.Unlock()

	if !ok {
		return types.FillStatus{Filled: false, Status: "UNKNOWN", Message: "no price observed for contract"}, nil
	}

	return types.FillStatus{
		Filled:   true,
		AvgPrice: RoundTick(price),
		Status:   "FILLED",
		Message:  fmt.Sprintf("paper fill at %.2f", price),
	}, nil
}
