package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/strikebot-labs/strikebot/internal/config"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/risk"
	"github.com/strikebot-labs/strikebot/internal/strategy"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/mocks"
)

func fptr(v float64) *float64 {
	return &v
}

func testConfig(mode strategy.Mode) *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{FillTimeoutSeconds: 1},
		Trading: config.TradingConfig{
			Index:            "NIFTY",
			Mode:             "paper",
			TimeframeSeconds: 60,
			OrderQtyLots:     1,
		},
		Risk: config.RiskConfig{
			StopMode:          "step",
			InitialStopPoints: fptr(50),
		},
		Strategy: config.StrategyConfig{
			Mode:                 mode,
			SuperTrendPeriod:     2,
			SuperTrendMultiplier: 1,
			MACDFastPeriod:       2,
			MACDSlowPeriod:       3,
			MACDSignalPeriod:     2,
			ADXPeriod:            2,
			AgentADXMin:          20,
			AgentWaveResetAbs:    0.05,
			HistogramBandLow:     0.5,
			HistogramBandHigh:    1.25,
		},
	}
}

type ControllerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	client *mocks.MockExecutionClient
	hub    *StateHub
	c      *Controller
	clock  time.Time
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockExecutionClient(s.ctrl)
	s.hub = NewStateHub()

	log, err := logger.NewDevelopmentLogger()
	s.Require().NoError(err)

	c, err := NewController(testConfig(strategy.ModeFlip), s.client, nil, s.hub, log)
	s.Require().NoError(err)

	// 2025-06-02 is a Monday.
	s.clock = time.Date(2025, 6, 2, 10, 0, 0, 0, types.IST)
	c.now = func() time.Time { return s.clock }
	c.currentDay = tradingDay(s.clock)

	s.c = c
}

// openTestPosition seeds a confirmed open position without going through
// the broker.
func (s *ControllerTestSuite) openTestPosition(kind types.OptionKind, entryPrice float64) {
	identity := types.ContractIdentity{
		Strike:     24400,
		Kind:       kind,
		Expiry:     "2025-06-03",
		SecurityID: "SEC-" + string(kind),
	}

	s.c.position = &types.Position{
		TradeID:    "T-1",
		Contract:   identity,
		EntryPrice: entryPrice,
		EntryTime:  s.clock,
		Quantity:   75,
		IndexName:  "NIFTY",
	}
	s.c.posTracker = s.c.newTracker(identity)
	s.c.lastOptionPrice = entryPrice
	s.c.riskMgr.OnConfirmedEntry(entryPrice)
}

func (s *ControllerTestSuite) TestClosedMarketSkipsPolling() {
	s.clock = time.Date(2025, 6, 2, 8, 0, 0, 0, types.IST)

	s.c.step(context.Background())

	status := s.hub.Snapshot()
	s.False(status.MarketOpen)
	s.True(status.Running)
}

func (s *ControllerTestSuite) TestWeekendIsClosed() {
	s.clock = time.Date(2025, 6, 1, 10, 0, 0, 0, types.IST)

	s.c.step(context.Background())

	s.False(s.hub.Snapshot().MarketOpen)
}

func (s *ControllerTestSuite) TestEntryNeedsConfirmedFill() {
	ctx := context.Background()
	s.c.lastIndexPrice = 24400

	s.client.EXPECT().ResolveNearestExpiry(gomock.Any(), gomock.Any()).Return("2025-06-03", nil)
	s.client.EXPECT().ResolveContractID(gomock.Any(), gomock.Any(), 24400, types.OptionKindCE, "2025-06-03").Return("SEC-CE", nil)
	s.client.EXPECT().ResolveContractID(gomock.Any(), gomock.Any(), 24400, types.OptionKindPE, "2025-06-03").Return("SEC-PE", nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideBuy, 75).Return(types.OrderResult{OrderID: "O-1", Status: "success"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-1", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 182.5, Status: "TRADED"}, nil)

	s.c.handleEntry(ctx, s.clock, types.OptionKindCE)

	s.Require().NotNil(s.c.position)
	s.Equal(types.OptionKindCE, s.c.position.Contract.Kind)
	s.InDelta(182.5, s.c.position.EntryPrice, 1e-9)
	s.Equal(1, s.c.riskMgr.TradeCountToday())

	// The initial stop sits 50 points below the confirmed entry price.
	state := s.c.riskMgr.State()
	s.Require().NotNil(state)
	s.InDelta(132.5, state.Stop().Unwrap(), 1e-9)
}

func (s *ControllerTestSuite) TestEntryAbortsOnFillTimeout() {
	ctx := context.Background()
	s.c.lastIndexPrice = 24400

	s.client.EXPECT().ResolveNearestExpiry(gomock.Any(), gomock.Any()).Return("2025-06-03", nil)
	s.client.EXPECT().ResolveContractID(gomock.Any(), gomock.Any(), 24400, types.OptionKindCE, "2025-06-03").Return("SEC-CE", nil)
	s.client.EXPECT().ResolveContractID(gomock.Any(), gomock.Any(), 24400, types.OptionKindPE, "2025-06-03").Return("SEC-PE", nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideBuy, 75).Return(types.OrderResult{OrderID: "O-1"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-1", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: false, Status: "PENDING"}, nil)

	s.c.handleEntry(ctx, s.clock, types.OptionKindCE)

	s.Nil(s.c.position)
	s.Equal(0, s.c.riskMgr.TradeCountToday())
}

func (s *ControllerTestSuite) TestNoEntryOutsideWindow() {
	s.clock = time.Date(2025, 6, 2, 9, 20, 0, 0, types.IST)

	s.c.handleEntry(context.Background(), s.clock, types.OptionKindCE)

	s.Nil(s.c.position)
}

func (s *ControllerTestSuite) TestHaltBlocksEntry() {
	s.c.riskMgr.Halt()

	s.c.handleEntry(context.Background(), s.clock, types.OptionKindCE)

	s.Nil(s.c.position)
}

func (s *ControllerTestSuite) TestTickRiskExitOnStop() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)

	// Entry 180 with a 50-point stop: a quote at 120 breaches 130.
	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), []string{"SEC-CE"}).Return(24400.0, map[string]float64{"SEC-CE": 120}, nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-2"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-2", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 120, Status: "TRADED"}, nil)

	s.c.step(ctx)

	s.Nil(s.c.position)
	s.InDelta(-60, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

func (s *ControllerTestSuite) TestExitKeepsPositionOnUnconfirmedFill() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)

	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-2"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-2", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: false, Status: "CANCELLED"}, nil)

	s.c.exitPosition(ctx, types.ExitReasonTargetHit)

	s.Require().NotNil(s.c.position)
	s.InDelta(0, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

func (s *ControllerTestSuite) TestForceSquareOffAtCutoff() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)
	s.clock = time.Date(2025, 6, 2, 15, 26, 0, 0, types.IST)

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), []string{"SEC-CE"}).Return(24400.0, map[string]float64{"SEC-CE": 185}, nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-3"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-3", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 185, Status: "TRADED"}, nil)

	s.c.step(ctx)

	s.Nil(s.c.position)
	s.InDelta(5, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

func (s *ControllerTestSuite) TestSquareOffRequestClosesPosition() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)
	s.c.RequestSquareOff()

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), []string{"SEC-CE"}).Return(24400.0, map[string]float64{"SEC-CE": 190}, nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-4"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-4", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 190, Status: "TRADED"}, nil)

	s.c.step(ctx)

	s.Nil(s.c.position)
}

func (s *ControllerTestSuite) TestReverseEntryClosesOppositeSide() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindPE, 160)

	s.c.lastIndexPrice = 24400
	s.c.expiry = "2025-06-03"
	s.c.universe.Rebuild(24400, "2025-06-03")
	s.c.universe.SetSecurityID(24400, types.OptionKindCE, "SEC-CE")
	s.c.universe.SetSecurityID(24400, types.OptionKindPE, "SEC-PE")

	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-PE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-5"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-5", "SEC-PE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 150, Status: "TRADED"}, nil)
	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideBuy, 75).Return(types.OrderResult{OrderID: "O-6"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-6", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 175, Status: "TRADED"}, nil)

	s.c.handleEntry(ctx, s.clock, types.OptionKindCE)

	s.Require().NotNil(s.c.position)
	s.Equal(types.OptionKindCE, s.c.position.Contract.Kind)
	s.Equal(2, s.c.riskMgr.TradeCountToday())
	s.InDelta(-10, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

// useHistogramMode swaps in a histogram-mode controller sharing the suite
// clock and mocks.
func (s *ControllerTestSuite) useHistogramMode() {
	log, err := logger.NewDevelopmentLogger()
	s.Require().NoError(err)

	c, err := NewController(testConfig(strategy.ModeHistogram), s.client, nil, s.hub, log)
	s.Require().NoError(err)

	c.now = func() time.Time { return s.clock }
	c.currentDay = tradingDay(s.clock)

	s.c = c
}

// rampedTracker feeds an accelerating premium series that leaves the
// contract bullish with a strictly rising histogram inside the entry band.
func (s *ControllerTestSuite) rampedTracker(identity types.ContractIdentity) *tracker {
	t := s.c.newTracker(identity)

	for i, price := range []float64{100, 110, 125, 145, 170, 200} {
		candle := types.Candle{
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Timestamp: s.clock.Add(time.Duration(i) * time.Minute),
		}

		t.trend.Update(candle)
		t.osc.Update(candle)
	}

	return t
}

func (s *ControllerTestSuite) TestHistogramReversesOppositeSide() {
	ctx := context.Background()
	s.useHistogramMode()
	s.openTestPosition(types.OptionKindPE, 160)

	s.c.lastIndexPrice = 24400
	s.c.expiry = "2025-06-03"
	s.c.universe.Rebuild(24400, "2025-06-03")

	ce := types.ContractIdentity{Strike: 24400, Kind: types.OptionKindCE, Expiry: "2025-06-03", SecurityID: "SEC-CE"}
	s.c.trackers["SEC-CE"] = s.rampedTracker(ce)

	// The held side must be closed before the new side is opened.
	gomock.InOrder(
		s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-PE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-7"}, nil),
		s.client.EXPECT().ConfirmFill(gomock.Any(), "O-7", "SEC-PE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 150, Status: "TRADED"}, nil),
		s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideBuy, 75).Return(types.OrderResult{OrderID: "O-8"}, nil),
		s.client.EXPECT().ConfirmFill(gomock.Any(), "O-8", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 175, Status: "TRADED"}, nil),
	)

	s.c.builder.Ingest(24400, s.clock)
	s.c.onCandleClose(ctx, s.clock)

	s.Require().NotNil(s.c.position)
	s.Equal(types.OptionKindCE, s.c.position.Contract.Kind)
	s.InDelta(175, s.c.position.EntryPrice, 1e-9)
	s.Equal(2, s.c.riskMgr.TradeCountToday())
	s.InDelta(-10, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

func (s *ControllerTestSuite) TestHistogramReverseKeepsPositionOnUnconfirmedExit() {
	ctx := context.Background()
	s.useHistogramMode()
	s.openTestPosition(types.OptionKindPE, 160)

	ce := types.ContractIdentity{Strike: 24400, Kind: types.OptionKindCE, Expiry: "2025-06-03", SecurityID: "SEC-CE"}
	s.c.trackers["SEC-CE"] = s.rampedTracker(ce)

	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-PE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-7"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-7", "SEC-PE", 75, gomock.Any()).Return(types.FillStatus{Filled: false, Status: "PENDING"}, nil)

	s.c.decideHistogram(ctx, s.clock)

	// The exit fill did not confirm, so the held side stays and no new
	// order goes out.
	s.Require().NotNil(s.c.position)
	s.Equal(types.OptionKindPE, s.c.position.Contract.Kind)
	s.Equal(1, s.c.riskMgr.TradeCountToday())
}

func (s *ControllerTestSuite) TestHistogramSameSideEligibleHolds() {
	ctx := context.Background()
	s.useHistogramMode()
	s.openTestPosition(types.OptionKindCE, 180)

	other := types.ContractIdentity{Strike: 24450, Kind: types.OptionKindCE, Expiry: "2025-06-03", SecurityID: "SEC-CE-2"}
	s.c.trackers["SEC-CE-2"] = s.rampedTracker(other)

	s.c.decideHistogram(ctx, s.clock)

	s.Require().NotNil(s.c.position)
	s.Equal("SEC-CE", s.c.position.Contract.SecurityID)
	s.Equal(1, s.c.riskMgr.TradeCountToday())
}

func (s *ControllerTestSuite) TestCandleCloseStopCatchesRangeBreach() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)

	// The premium dipped through the 130 stop inside the window and came
	// back; the closed candle's low still triggers the exit.
	s.c.posTracker.builder.Ingest(180, s.clock)
	s.c.posTracker.builder.Ingest(120, s.clock.Add(20*time.Second))
	s.c.posTracker.builder.Ingest(140, s.clock.Add(40*time.Second))

	s.client.EXPECT().SubmitOrder(gomock.Any(), "SEC-CE", types.OrderSideSell, 75).Return(types.OrderResult{OrderID: "O-9"}, nil)
	s.client.EXPECT().ConfirmFill(gomock.Any(), "O-9", "SEC-CE", 75, gomock.Any()).Return(types.FillStatus{Filled: true, AvgPrice: 130, Status: "TRADED"}, nil)

	s.c.builder.Ingest(24400, s.clock)
	s.c.onCandleClose(ctx, s.clock.Add(time.Minute))

	s.Nil(s.c.position)
	s.InDelta(-50, s.c.riskMgr.DailyRealizedPnL(), 1e-9)
}

func (s *ControllerTestSuite) TestDailyResetClearsHaltAndCounters() {
	ctx := context.Background()
	s.c.currentDay = "2025-05-30"
	s.c.riskMgr.Halt()

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), gomock.Any()).Return(24400.0, map[string]float64{}, nil)

	s.c.step(ctx)

	s.Equal("2025-06-02", s.c.currentDay)
	s.False(s.c.riskMgr.Halted())
}

func (s *ControllerTestSuite) TestFailedPollSkipsIteration() {
	ctx := context.Background()
	s.openTestPosition(types.OptionKindCE, 180)

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.0, nil, context.DeadlineExceeded)

	s.c.step(ctx)

	// No orders were placed and the position is untouched.
	s.NotNil(s.c.position)
}

func (s *ControllerTestSuite) TestCandleBoundaryClosesWindow() {
	ctx := context.Background()

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), gomock.Any()).Return(24400.0, map[string]float64{}, nil).Times(2)

	s.c.step(ctx)
	s.True(s.c.builder.HasData())

	s.clock = s.clock.Add(time.Minute)
	s.c.step(ctx)

	// The boundary crossing closed the window and reset the builder for
	// the next one; the new tick opened it again.
	s.True(s.c.builder.HasData())
	s.Equal(s.c.bucketStart(s.clock), s.c.bucket)
}

func (s *ControllerTestSuite) TestRiskParamUpdateAppliesOnNextStep() {
	ctx := context.Background()

	params := testConfig(strategy.ModeFlip).Risk.Params()
	params.StopMode = risk.StopModeBand

	s.Require().NoError(s.c.ApplyRiskParams(params))

	s.client.EXPECT().GetContractPrices(gomock.Any(), gomock.Any(), gomock.Any()).Return(24400.0, map[string]float64{}, nil)

	s.c.step(ctx)

	s.Equal(risk.StopModeBand, s.c.riskMgr.Params().StopMode)
}

func (s *ControllerTestSuite) TestInvalidRiskParamsRejected() {
	params := testConfig(strategy.ModeFlip).Risk.Params()
	params.StopMode = "bogus"

	s.Error(s.c.ApplyRiskParams(params))
}

type StateHubTestSuite struct {
	suite.Suite
}

func TestStateHubSuite(t *testing.T) {
	suite.Run(t, new(StateHubTestSuite))
}

func (s *StateHubTestSuite) TestSnapshotIsACopy() {
	hub := NewStateHub()

	stop := 130.0
	hub.Publish(Status{IndexPrice: 24400, Stop: &stop, Position: &types.Position{TradeID: "T-1"}})

	snap := hub.Snapshot()
	*snap.Stop = 999
	snap.Position.TradeID = "mutated"

	again := hub.Snapshot()
	s.InDelta(130, *again.Stop, 1e-9)
	s.Equal("T-1", again.Position.TradeID)
}

func (s *StateHubTestSuite) TestSubscribeReceivesUpdates() {
	hub := NewStateHub()

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Status{IndexPrice: 24400})

	select {
	case status := <-ch:
		s.InDelta(24400, status.IndexPrice, 1e-9)
	case <-time.After(time.Second):
		s.Fail("no status received")
	}
}

func (s *StateHubTestSuite) TestCancelClosesChannel() {
	hub := NewStateHub()

	ch, cancel := hub.Subscribe()
	cancel()

	_, open := <-ch
	s.False(open)

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(Status{})
}

func (s *StateHubTestSuite) TestSlowSubscriberDropsUpdates() {
	hub := NewStateHub()

	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.Publish(Status{TradeCountToday: i})
	}

	// The buffer absorbed some updates and the rest were dropped without
	// blocking the publisher.
	s.LessOrEqual(len(ch), 8)
}
