package bot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/broker"
	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/storage"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// Executor drives the order lifecycle for the single position. A position
// exists only between a confirmed entry fill and a confirmed exit fill;
// rejected, cancelled, and timed-out orders leave the state untouched.
type Executor struct {
	client      broker.ExecutionClient
	store       *storage.Store
	logger      *logger.Logger
	fillTimeout time.Duration
	mode        string
}

// NewExecutor creates an executor. store may be nil to skip the ledger.
func NewExecutor(client broker.ExecutionClient, store *storage.Store, log *logger.Logger, fillTimeout time.Duration, mode string) *Executor {
	return &Executor{
		client:      client,
		store:       store,
		logger:      log,
		fillTimeout: fillTimeout,
		mode:        mode,
	}
}

// OpenPosition buys the contract and waits for the fill. Only a confirmed
// fill produces a position.
func (e *Executor) OpenPosition(ctx context.Context, index contract.IndexSpec, c types.ContractIdentity, qty int) (*types.Position, error) {
	result, err := e.client.SubmitOrder(ctx, c.SecurityID, types.OrderSideBuy, qty)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeOrderFailed, "entry order for %d %s failed", c.Strike, c.Kind)
	}

	fill, err := e.client.ConfirmFill(ctx, result.OrderID, c.SecurityID, qty, e.fillTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeFillNotConfirmed, "entry fill poll for order %s failed", result.OrderID)
	}

	if !fill.Filled {
		return nil, errors.Newf(errors.ErrCodeFillNotConfirmed, "entry order %s not filled: %s", result.OrderID, fill.Status)
	}

	pos := &types.Position{
		TradeID:    uuid.NewString(),
		Contract:   c,
		EntryPrice: fill.AvgPrice,
		EntryTime:  time.Now().In(types.IST),
		Quantity:   qty,
		IndexName:  index.Name,
	}

	e.logger.Info("position opened",
		zap.String("trade_id", pos.TradeID),
		zap.Int("strike", c.Strike),
		zap.String("kind", string(c.Kind)),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Int("quantity", qty))

	if e.store != nil {
		record := types.TradeRecord{
			TradeID:    pos.TradeID,
			IndexName:  pos.IndexName,
			Kind:       c.Kind,
			Strike:     c.Strike,
			Expiry:     c.Expiry,
			EntryTime:  pos.EntryTime,
			EntryPrice: pos.EntryPrice,
			Quantity:   qty,
			Mode:       e.mode,
		}
		if err := e.store.SaveTrade(record); err != nil {
			e.logger.Error("failed to persist trade entry", zap.Error(err))
		}
	}

	return pos, nil
}

// ClosePosition sells the held contract and waits for the fill. The
// position is considered closed only on a confirmed fill; the caller keeps
// it open on error.
func (e *Executor) ClosePosition(ctx context.Context, pos *types.Position, reason string) (types.TradeRecord, error) {
	c := pos.Contract

	result, err := e.client.SubmitOrder(ctx, c.SecurityID, types.OrderSideSell, pos.Quantity)
	if err != nil {
		return types.TradeRecord{}, errors.Wrapf(err, errors.ErrCodeOrderFailed, "exit order for trade %s failed", pos.TradeID)
	}

	fill, err := e.client.ConfirmFill(ctx, result.OrderID, c.SecurityID, pos.Quantity, e.fillTimeout)
	if err != nil {
		return types.TradeRecord{}, errors.Wrapf(err, errors.ErrCodeFillNotConfirmed, "exit fill poll for order %s failed", result.OrderID)
	}

	if !fill.Filled {
		return types.TradeRecord{}, errors.Newf(errors.ErrCodeFillNotConfirmed, "exit order %s not filled: %s", result.OrderID, fill.Status)
	}

	points := fill.AvgPrice - pos.EntryPrice

	record := types.TradeRecord{
		TradeID:    pos.TradeID,
		IndexName:  pos.IndexName,
		Kind:       c.Kind,
		Strike:     c.Strike,
		Expiry:     c.Expiry,
		EntryTime:  pos.EntryTime,
		ExitTime:   time.Now().In(types.IST),
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.AvgPrice,
		Quantity:   pos.Quantity,
		PnL:        points * float64(pos.Quantity),
		PnLPoints:  points,
		ExitReason: reason,
		Mode:       e.mode,
		Closed:     true,
	}

	e.logger.Info("position closed",
		zap.String("trade_id", pos.TradeID),
		zap.String("reason", reason),
		zap.Float64("exit_price", fill.AvgPrice),
		zap.Float64("pnl_points", points))

	if e.store != nil {
		if err := e.store.UpdateTradeExit(record); err != nil {
			e.logger.Error("failed to persist trade exit", zap.Error(err))
		}
	}

	return record, nil
}
