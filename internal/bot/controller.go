package bot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/broker"
	"github.com/strikebot-labs/strikebot/internal/candle"
	"github.com/strikebot-labs/strikebot/internal/config"
	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/indicator"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/risk"
	"github.com/strikebot-labs/strikebot/internal/storage"
	"github.com/strikebot-labs/strikebot/internal/strategy"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// tracker holds the per-contract premium candle pipeline: its own builder
// and indicators fed from the contract's last traded price.
type tracker struct {
	contract types.ContractIdentity
	builder  *candle.Builder
	trend    *indicator.SuperTrend
	osc      *indicator.MACD
}

// Controller is the single-writer trading loop. It polls quotes once per
// second, folds them into candles, runs the indicators and the decision
// policy on each closed candle, and drives the order lifecycle. All mutable
// trading state lives here; observers read snapshots through the StateHub.
type Controller struct {
	cfg      *config.Config
	index    contract.IndexSpec
	client   broker.ExecutionClient
	executor *Executor
	riskMgr  *risk.Manager
	hub      *StateHub
	logger   *logger.Logger

	agent      *strategy.Agent
	policy     strategy.Policy
	histogram  *strategy.HistogramPolicy
	stateStore *strategy.StateStore

	builder *candle.Builder
	trend   *indicator.SuperTrend
	osc     *indicator.MACD
	adx     *indicator.ADX

	universe *contract.Universe
	trackers map[string]*tracker

	position   *types.Position
	posTracker *tracker

	currentDay string
	expiry     string
	bucket     time.Time

	lastIndexPrice  float64
	lastOptionPrice float64

	squareOffReq atomic.Bool
	riskCh       chan risk.Params

	now      func() time.Time
	interval time.Duration
}

// NewController wires the trading loop from configuration. store may be nil
// to run without a ledger.
func NewController(cfg *config.Config, client broker.ExecutionClient, store *storage.Store, hub *StateHub, log *logger.Logger) (*Controller, error) {
	index, err := contract.LookupIndex(cfg.Trading.Index)
	if err != nil {
		return nil, err
	}

	riskMgr, err := risk.NewManager(cfg.Risk.Params())
	if err != nil {
		return nil, err
	}

	trend, err := indicator.NewSuperTrend(cfg.Strategy.SuperTrendPeriod, cfg.Strategy.SuperTrendMultiplier)
	if err != nil {
		return nil, err
	}

	osc, err := indicator.NewMACD(cfg.Strategy.MACDFastPeriod, cfg.Strategy.MACDSlowPeriod, cfg.Strategy.MACDSignalPeriod)
	if err != nil {
		return nil, err
	}

	adx, err := indicator.NewADX(cfg.Strategy.ADXPeriod)
	if err != nil {
		return nil, err
	}

	steps := 0
	if cfg.Strategy.Mode == strategy.ModeHistogram {
		steps = cfg.Trading.UniverseSteps
	}

	c := &Controller{
		cfg:      cfg,
		index:    index,
		client:   client,
		executor: NewExecutor(client, store, log, cfg.Broker.FillTimeout(), cfg.Trading.Mode),
		riskMgr:  riskMgr,
		hub:      hub,
		logger:   log,
		builder:  candle.NewBuilder(),
		trend:    trend,
		osc:      osc,
		adx:      adx,
		universe: contract.NewUniverse(index, steps),
		trackers: make(map[string]*tracker),
		riskCh:   make(chan risk.Params, 1),
		now:      time.Now,
		interval: time.Second,
	}

	switch cfg.Strategy.Mode {
	case strategy.ModeAgent:
		agent, err := strategy.NewAgent(cfg.Strategy.AgentADXMin, cfg.Strategy.AgentWaveResetAbs)
		if err != nil {
			return nil, err
		}

		if cfg.Strategy.PersistAgentState {
			c.stateStore = strategy.NewStateStore(cfg.Strategy.AgentStatePath)
			if state, ok := c.stateStore.Load(); ok {
				agent.Restore(state)
				log.Info("restored agent state", zap.Bool("wave_lock", state.WaveLock))
			}
		}

		c.agent = agent
		c.policy = agent
	case strategy.ModeFlip:
		c.policy = strategy.NewFlipPolicy()
	case strategy.ModeHistogram:
		histogram, err := strategy.NewHistogramPolicy(cfg.Strategy.HistogramBandLow, cfg.Strategy.HistogramBandHigh)
		if err != nil {
			return nil, err
		}

		c.histogram = histogram
		c.policy = histogram
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidStrategyMode, "unknown strategy mode %q", cfg.Strategy.Mode)
	}

	return c, nil
}

// RequestSquareOff asks the loop to close any open position on its next
// iteration.
func (c *Controller) RequestSquareOff() {
	c.squareOffReq.Store(true)
}

// ApplyRiskParams hands new risk thresholds to the loop. Invalid parameters
// are rejected here and the running thresholds are untouched.
func (c *Controller) ApplyRiskParams(params risk.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	select {
	case c.riskCh <- params:
	default:
		// An unconsumed earlier update is superseded.
		select {
		case <-c.riskCh:
		default:
		}
		c.riskCh <- params
	}

	return nil
}

// Run drives the loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started",
		zap.String("index", c.index.Name),
		zap.String("mode", c.cfg.Trading.Mode),
		zap.String("strategy", string(c.cfg.Strategy.Mode)))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.publish(false)
			c.logger.Info("controller stopped")

			return nil
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

// step runs one loop iteration.
func (c *Controller) step(ctx context.Context) {
	select {
	case params := <-c.riskCh:
		if err := c.riskMgr.UpdateParams(params); err != nil {
			c.logger.Error("rejected risk parameter update", zap.Error(err))
		} else {
			c.logger.Info("risk parameters updated")
		}
	default:
	}

	now := c.now()

	if day := tradingDay(now); day != c.currentDay && isMarketOpen(now) {
		c.resetDay(day)
	}

	if !isMarketOpen(now) {
		c.publish(true)

		return
	}

	// Close the window before folding this iteration's quotes so the
	// candle holds only ticks from its own window. The closing window's
	// last tick was risk-checked in the prior iteration, so in stream
	// order tick risk still runs before candle-close processing.
	if bucket := c.bucketStart(now); !bucket.Equal(c.bucket) {
		closed := !c.bucket.IsZero()
		c.bucket = bucket

		if closed {
			c.onCandleClose(ctx, now)
		}
	}

	if !c.poll(ctx, now) {
		c.publish(true)

		return
	}

	if c.position != nil && (c.squareOffReq.Swap(false) || isSquareOffTime(now)) {
		c.exitPosition(ctx, types.ExitReasonForceSquareOff)
	} else {
		c.squareOffReq.Store(false)
	}

	if c.position != nil && c.lastOptionPrice > 0 {
		if reason, hit := c.riskMgr.CheckTick(c.lastOptionPrice); hit {
			c.exitPosition(ctx, reason)
		}
	}

	c.publish(true)
}

// resetDay starts a fresh session: the previous day's counters are flushed
// to storage and all intraday state is cleared.
func (c *Controller) resetDay(day string) {
	if c.currentDay != "" {
		c.saveDailyStats()
	}

	c.currentDay = day
	c.riskMgr.ResetDay()
	c.policy.Reset()
	c.persistAgentState()

	c.builder.Reset()
	c.trend.Reset()
	c.osc.Reset()
	c.adx.Reset()
	c.bucket = time.Time{}
	c.expiry = ""
	c.trackers = make(map[string]*tracker)

	c.logger.Info("session reset", zap.String("day", day))
}

func (c *Controller) saveDailyStats() {
	if c.executor.store == nil || c.currentDay == "" {
		return
	}

	day, err := time.ParseInLocation("2006-01-02", c.currentDay, types.IST)
	if err != nil {
		return
	}

	if err := c.executor.store.SaveDailyStats(day, c.riskMgr.TradeCountToday(), c.riskMgr.DailyRealizedPnL()); err != nil {
		c.logger.Error("failed to save daily stats", zap.Error(err))
	}
}

// poll fetches the index price and tracked contract prices in one round
// trip and folds them into the in-progress candles. A failed poll skips the
// iteration; it never fabricates prices.
func (c *Controller) poll(ctx context.Context, now time.Time) bool {
	ids := make([]string, 0, len(c.trackers)+1)
	for id := range c.trackers {
		ids = append(ids, id)
	}

	if c.posTracker != nil {
		if _, tracked := c.trackers[c.posTracker.contract.SecurityID]; !tracked {
			ids = append(ids, c.posTracker.contract.SecurityID)
		}
	}

	indexPrice, prices, err := c.client.GetContractPrices(ctx, c.index, ids)
	if err != nil {
		c.logger.Warn("quote poll failed", zap.Error(err))

		return false
	}

	c.lastIndexPrice = indexPrice
	c.builder.Ingest(indexPrice, now)

	for id, t := range c.trackers {
		if price, ok := prices[id]; ok {
			t.builder.Ingest(price, now)
		}
	}

	if c.posTracker != nil {
		if price, ok := prices[c.posTracker.contract.SecurityID]; ok && price > 0 {
			c.lastOptionPrice = price

			if _, tracked := c.trackers[c.posTracker.contract.SecurityID]; !tracked {
				c.posTracker.builder.Ingest(price, now)
			}
		}
	}

	return true
}

// onCandleClose finalizes the window's candles, advances the indicators,
// and runs the decision policy.
func (c *Controller) onCandleClose(ctx context.Context, now time.Time) {
	indexCandle, ok := c.builder.Close()
	if !ok {
		return
	}

	prevDirection := c.trend.Direction()

	value, emitted := c.trend.Update(indexCandle)
	c.osc.Update(indexCandle)
	c.adx.Update(indexCandle)

	flipped := emitted && prevDirection != types.DirectionUnknown && value.Direction != prevDirection

	premium, hasPremium := c.closeTrackerCandles()

	// Candle-range safety net: catches a protective level the tick cadence
	// crossed inside the closed window.
	if c.position != nil && hasPremium {
		if _, reason, hit := c.riskMgr.CheckCandle(premium); hit {
			c.exitPosition(ctx, reason)
		}
	}

	c.anchorBandStop()

	if c.cfg.Strategy.Mode == strategy.ModeHistogram {
		c.decideHistogram(ctx, now)

		return
	}

	snap := c.snapshot(indexCandle, flipped)

	action := c.policy.Decide(snap)
	c.persistAgentState()

	switch action {
	case types.ActionExit:
		if c.position != nil {
			reason := types.ExitReasonMomentumDecay
			if flipped {
				reason = types.ExitReasonTrendReversal
			}

			c.exitPosition(ctx, reason)
		}
	case types.ActionEnterCE:
		c.handleEntry(ctx, now, types.OptionKindCE)
	case types.ActionEnterPE:
		c.handleEntry(ctx, now, types.OptionKindPE)
	}
}

// snapshot assembles the policy input from the index-level indicators.
func (c *Controller) snapshot(indexCandle types.Candle, flipped bool) strategy.Snapshot {
	snap := strategy.Snapshot{
		Timestamp:        indexCandle.Timestamp,
		Candle:           indexCandle,
		Direction:        c.trend.Direction(),
		Flipped:          flipped,
		HistogramHistory: c.osc.HistogramHistory(),
		InPosition:       c.position != nil,
	}

	if c.position != nil {
		snap.PositionKind = c.position.Contract.Kind
	}

	if adxValue, ok := c.adx.Last(); ok {
		snap.ADX = optional.Some(adxValue)
	}

	if macd, ok := c.osc.Last(); ok {
		snap.MACDCurrent = optional.Some(macd.Line)

		if macd.HasPrev {
			snap.MACDPrevious = optional.Some(macd.PrevLine)
		}
	}

	return snap
}

// closeTrackerCandles finalizes the per-contract candle windows and
// returns the held contract's closed premium candle when there is one.
func (c *Controller) closeTrackerCandles() (types.Candle, bool) {
	var (
		held    types.Candle
		haveOne bool
	)

	for _, t := range c.trackers {
		if closed, ok := c.closeTracker(t); ok && t == c.posTracker {
			held, haveOne = closed, true
		}
	}

	if c.posTracker != nil {
		if _, tracked := c.trackers[c.posTracker.contract.SecurityID]; !tracked {
			if closed, ok := c.closeTracker(c.posTracker); ok {
				held, haveOne = closed, true
			}
		}
	}

	return held, haveOne
}

func (c *Controller) closeTracker(t *tracker) (types.Candle, bool) {
	premiumCandle, ok := t.builder.Close()
	if ok {
		t.trend.Update(premiumCandle)
		t.osc.Update(premiumCandle)
	}

	return premiumCandle, ok
}

// anchorBandStop raises the protective stop to the held contract's own
// trend-band value in band mode.
func (c *Controller) anchorBandStop() {
	if c.position == nil || c.posTracker == nil {
		return
	}

	if last, ok := c.posTracker.trend.Last(); ok {
		c.riskMgr.OnBandValue(last.Value)
	}
}

// decideHistogram runs the per-contract slope policy over the tracked
// universe and feeds the eligible set to the contract selector. While a
// position is held, an eligible opposite-kind contract reverses it: the
// held side is closed first and the new side entered only once that exit
// fill confirmed.
func (c *Controller) decideHistogram(ctx context.Context, now time.Time) {
	if c.position != nil {
		if c.posTracker != nil && c.histogram.ShouldExit(c.trackerSnapshot(c.posTracker)) {
			c.exitPosition(ctx, types.ExitReasonTrendReversal)

			return
		}

		chosen, ok := c.selectEligible()
		if !ok || chosen.Kind == c.position.Contract.Kind || !c.canEnter(now) {
			return
		}

		c.exitPosition(ctx, types.ExitReasonReverseEntry)

		if c.position != nil {
			// The exit fill did not confirm; keep the position.
			return
		}

		// The reverse exit may have tripped the daily halt.
		if c.canEnter(now) {
			c.enter(ctx, chosen)
		}

		return
	}

	if !c.canEnter(now) {
		return
	}

	if err := c.ensureUniverse(ctx, now); err != nil {
		c.logger.Warn("universe rebuild failed", zap.Error(err))

		return
	}

	if chosen, ok := c.selectEligible(); ok {
		c.enter(ctx, chosen)
	}
}

// selectEligible evaluates the slope policy over the tracked contracts and
// picks the entry candidate. The held contract is never a candidate.
func (c *Controller) selectEligible() (types.ContractIdentity, bool) {
	var eligible []types.ContractIdentity

	for _, t := range c.trackers {
		if c.position != nil && t.contract.SecurityID == c.position.Contract.SecurityID {
			continue
		}

		if c.histogram.EligibleEntry(c.trackerSnapshot(t)) {
			eligible = append(eligible, t.contract)
		}
	}

	return c.universe.SelectEntry(eligible)
}

func (c *Controller) trackerSnapshot(t *tracker) strategy.Snapshot {
	snap := strategy.Snapshot{
		Direction:        t.trend.Direction(),
		HistogramHistory: t.osc.HistogramHistory(),
		InPosition:       c.position != nil && c.position.Contract.SecurityID == t.contract.SecurityID,
	}

	if snap.InPosition {
		snap.PositionKind = t.contract.Kind
	}

	return snap
}

// handleEntry routes a policy enter action: reverse entries close the
// opposite side first.
func (c *Controller) handleEntry(ctx context.Context, now time.Time, kind types.OptionKind) {
	if c.position != nil {
		if c.position.Contract.Kind == kind {
			return
		}

		c.exitPosition(ctx, types.ExitReasonReverseEntry)

		if c.position != nil {
			// The exit fill did not confirm; keep the position.
			return
		}
	}

	if !c.canEnter(now) {
		return
	}

	if err := c.ensureUniverse(ctx, now); err != nil {
		c.logger.Warn("universe rebuild failed", zap.Error(err))

		return
	}

	pair, ok := c.universe.Contracts(c.universe.Center())
	if !ok {
		return
	}

	chosen := pair.CE
	if kind == types.OptionKindPE {
		chosen = pair.PE
	}

	c.enter(ctx, chosen)
}

// canEnter gates new entries on the session window and the risk limits.
func (c *Controller) canEnter(now time.Time) bool {
	return inEntryWindow(now) && c.riskMgr.CanEnter()
}

// enter opens the position. Only a confirmed fill mutates trading state.
func (c *Controller) enter(ctx context.Context, chosen types.ContractIdentity) {
	if chosen.SecurityID == "" {
		c.logger.Warn("skipping entry for unresolved contract",
			zap.Int("strike", chosen.Strike),
			zap.String("kind", string(chosen.Kind)))

		return
	}

	qty := c.cfg.Trading.OrderQtyLots * c.index.LotSize

	pos, err := c.executor.OpenPosition(ctx, c.index, chosen, qty)
	if err != nil {
		c.logger.Error("entry failed", zap.Error(err))

		return
	}

	c.position = pos
	c.lastOptionPrice = pos.EntryPrice
	c.riskMgr.OnConfirmedEntry(pos.EntryPrice)

	if t, ok := c.trackers[chosen.SecurityID]; ok {
		c.posTracker = t
	} else {
		c.posTracker = c.newTracker(chosen)
	}
}

// exitPosition closes the position. On a failed exit the position stays
// open and the loop retries on later triggers.
func (c *Controller) exitPosition(ctx context.Context, reason string) {
	record, err := c.executor.ClosePosition(ctx, c.position, reason)
	if err != nil {
		c.logger.Error("exit failed", zap.Error(err), zap.String("reason", reason))

		return
	}

	c.riskMgr.OnConfirmedExit(record.PnLPoints)
	c.position = nil
	c.posTracker = nil
	c.lastOptionPrice = 0
}

// ensureUniverse resolves the session expiry, recenters the strike
// universe on the current index price, and resolves venue ids for strikes
// that entered. Departed strikes drop their per-contract state.
func (c *Controller) ensureUniverse(ctx context.Context, now time.Time) error {
	if c.lastIndexPrice <= 0 {
		return errors.New(errors.ErrCodeQuoteFailed, "no index price observed yet")
	}

	if c.expiry == "" {
		expiry, err := c.client.ResolveNearestExpiry(ctx, c.index)
		if err != nil {
			expiry = c.index.FallbackExpiry(now)
			c.logger.Warn("expiry list unavailable, using calendar fallback",
				zap.String("expiry", expiry), zap.Error(err))
		}

		c.expiry = expiry
	}

	added, removed, changed := c.universe.Rebuild(c.lastIndexPrice, c.expiry)
	if !changed {
		return nil
	}

	for _, strike := range removed {
		for id, t := range c.trackers {
			if t.contract.Strike == strike {
				delete(c.trackers, id)
			}
		}
	}

	for _, strike := range added {
		for _, kind := range []types.OptionKind{types.OptionKindCE, types.OptionKindPE} {
			id, err := c.client.ResolveContractID(ctx, c.index, strike, kind, c.expiry)
			if err != nil {
				c.logger.Warn("failed to resolve contract",
					zap.Int("strike", strike), zap.String("kind", string(kind)), zap.Error(err))

				continue
			}

			c.universe.SetSecurityID(strike, kind, id)
		}

		if c.cfg.Strategy.Mode == strategy.ModeHistogram {
			pair, ok := c.universe.Contracts(strike)
			if !ok {
				continue
			}

			if pair.CE.SecurityID != "" {
				c.trackers[pair.CE.SecurityID] = c.newTracker(pair.CE)
			}

			if pair.PE.SecurityID != "" {
				c.trackers[pair.PE.SecurityID] = c.newTracker(pair.PE)
			}
		}
	}

	return nil
}

func (c *Controller) newTracker(identity types.ContractIdentity) *tracker {
	trend, _ := indicator.NewSuperTrend(c.cfg.Strategy.SuperTrendPeriod, c.cfg.Strategy.SuperTrendMultiplier)
	osc, _ := indicator.NewMACD(c.cfg.Strategy.MACDFastPeriod, c.cfg.Strategy.MACDSlowPeriod, c.cfg.Strategy.MACDSignalPeriod)

	return &tracker{
		contract: identity,
		builder:  candle.NewBuilder(),
		trend:    trend,
		osc:      osc,
	}
}

func (c *Controller) persistAgentState() {
	if c.agent == nil || c.stateStore == nil {
		return
	}

	if err := c.stateStore.Save(c.agent.State()); err != nil {
		c.logger.Error("failed to persist agent state", zap.Error(err))
	}
}

// bucketStart floors the time to the candle window boundary within the
// exchange-local day.
func (c *Controller) bucketStart(now time.Time) time.Time {
	ist := now.In(types.IST)
	midnight := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, types.IST)
	offset := ist.Sub(midnight)
	interval := c.cfg.Trading.Timeframe()

	return midnight.Add(offset - offset%interval)
}

// publish pushes a status snapshot to the hub.
func (c *Controller) publish(running bool) {
	status := Status{
		Running:          running,
		MarketOpen:       isMarketOpen(c.now()),
		Halted:           c.riskMgr.Halted(),
		Mode:             c.cfg.Trading.Mode,
		IndexName:        c.index.Name,
		Strategy:         string(c.cfg.Strategy.Mode),
		IndexPrice:       c.lastIndexPrice,
		OptionPrice:      c.lastOptionPrice,
		Direction:        c.trend.Direction().String(),
		TradeCountToday:  c.riskMgr.TradeCountToday(),
		DailyRealizedPnL: c.riskMgr.DailyRealizedPnL(),
		UpdatedAt:        c.now(),
	}

	if last, ok := c.trend.Last(); ok {
		status.SuperTrend = last.Value
	}

	if macd, ok := c.osc.Last(); ok {
		status.MACD = macd.Line
	}

	if adxValue, ok := c.adx.Last(); ok {
		status.ADX = adxValue
	}

	if c.position != nil {
		pos := *c.position
		status.Position = &pos

		if state := c.riskMgr.State(); state != nil && state.Stop().IsSome() {
			stop := state.Stop().Unwrap()
			status.Stop = &stop
		}
	}

	c.hub.Publish(status)
}
