package risk

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

type RiskTestSuite struct {
	suite.Suite
}

func TestRiskSuite(t *testing.T) {
	suite.Run(t, new(RiskTestSuite))
}

func stepParams() Params {
	return Params{
		StopMode:          StopModeStep,
		InitialStopPoints: optional.Some(50.0),
		TrailStartProfit:  optional.Some(10.0),
		TrailStep:         optional.Some(5.0),
	}
}

func (s *RiskTestSuite) TestValidate() {
	p := stepParams()
	s.NoError(p.Validate())

	p.StopMode = "ladder"
	err := p.Validate()
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidRiskMode, errors.GetCode(err))

	p = stepParams()
	p.TrailStep = optional.Some(-1.0)
	err = p.Validate()
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidThreshold, errors.GetCode(err))

	p = stepParams()
	p.TrailStep = optional.None[float64]()
	err = p.Validate()
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidThreshold, errors.GetCode(err))
}

func (s *RiskTestSuite) TestUpdateParamsRetainsPriorOnInvalid() {
	m, err := NewManager(stepParams())
	s.Require().NoError(err)

	bad := stepParams()
	bad.StopMode = "ladder"

	s.Error(m.UpdateParams(bad))
	s.Equal(StopModeStep, m.Params().StopMode)
}

func (s *RiskTestSuite) TestStepTrailing() {
	m, err := NewManager(stepParams())
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	// Initial stop sits initialStopPoints below entry.
	s.InDelta(50, m.State().Stop().Unwrap(), 1e-9)

	_, exited := m.CheckTick(95)
	s.False(exited)
	s.InDelta(50, m.State().Stop().Unwrap(), 1e-9)
	s.False(m.State().Trailed())

	// Profit 12 starts the trail: floor((12-10)/5)=0 steps above entry.
	_, exited = m.CheckTick(112)
	s.False(exited)
	s.InDelta(100, m.State().Stop().Unwrap(), 1e-9)
	s.True(m.State().Trailed())

	// Profit 18: floor((18-10)/5)=1 step above entry.
	_, exited = m.CheckTick(118)
	s.False(exited)
	s.InDelta(105, m.State().Stop().Unwrap(), 1e-9)

	reason, exited := m.CheckTick(104)
	s.True(exited)
	s.Equal(types.ExitReasonTrailingSLHit, reason)
}

func (s *RiskTestSuite) TestInitialStopReportsStoplossHit() {
	m, err := NewManager(stepParams())
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	reason, exited := m.CheckTick(49)
	s.True(exited)
	s.Equal(types.ExitReasonStoplossHit, reason)
}

func (s *RiskTestSuite) TestStopNeverRegresses() {
	m, err := NewManager(stepParams())
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	prev := m.State().Stop().Unwrap()

	for _, price := range []float64{102, 115, 108, 120, 101, 130, 125} {
		if _, exited := m.CheckTick(price); exited {
			break
		}

		cur := m.State().Stop().Unwrap()
		s.GreaterOrEqual(cur, prev)
		prev = cur
	}
}

func (s *RiskTestSuite) TestDailyLossBeatsTarget() {
	m, err := NewManager(Params{
		StopMode:     StopModeStep,
		TargetPoints: optional.Some(5.0),
		DailyMaxLoss: optional.Some(1.0),
	})
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)
	m.OnConfirmedExit(-8)
	m.OnConfirmedEntry(100)

	// Profit 6 clears the target, but the day is already 8 points down;
	// the daily cap wins.
	reason, exited := m.CheckTick(106)
	s.True(exited)
	s.Equal(types.ExitReasonDailyMaxLoss, reason)
	s.True(m.Halted())
}

func (s *RiskTestSuite) TestPerTradeCapBeatsStop() {
	m, err := NewManager(Params{
		StopMode:          StopModeStep,
		InitialStopPoints: optional.Some(3.0),
		MaxLossPerTrade:   optional.Some(5.0),
	})
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	// 94 breaches both the per-trade cap and the stop at 97.
	reason, exited := m.CheckTick(94)
	s.True(exited)
	s.Equal(types.ExitReasonMaxLossPerTrade, reason)
}

func (s *RiskTestSuite) TestBandModeLockAndOverlay() {
	m, err := NewManager(Params{
		StopMode:         StopModeBand,
		LockPoints:       optional.Some(10.0),
		TrailStartProfit: optional.Some(20.0),
		TrailStep:        optional.Some(5.0),
	})
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	_, exited := m.CheckTick(112)
	s.False(exited)

	// Band at 105, but the profit lock at entry+10 is higher.
	m.OnBandValue(105)
	s.InDelta(110, m.State().Stop().Unwrap(), 1e-9)

	// Excursion 25 brings the step overlay to entry+floor(5/5)*5 = 105,
	// below the lock: stop holds.
	_, exited = m.CheckTick(125)
	s.False(exited)
	m.OnBandValue(104)
	s.InDelta(110, m.State().Stop().Unwrap(), 1e-9)

	// A higher band wins again.
	m.OnBandValue(118)
	s.InDelta(118, m.State().Stop().Unwrap(), 1e-9)

	reason, exited := m.CheckTick(117)
	s.True(exited)
	s.Equal(types.ExitReasonTrailingSLHit, reason)
}

func (s *RiskTestSuite) TestBandModeIgnoredInStepMode() {
	m, err := NewManager(stepParams())
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)
	m.OnBandValue(95)
	s.InDelta(50, m.State().Stop().Unwrap(), 1e-9)
}

func (s *RiskTestSuite) TestCheckCandleStopBeforeTarget() {
	m, err := NewManager(Params{
		StopMode:          StopModeStep,
		InitialStopPoints: optional.Some(10.0),
		TargetPoints:      optional.Some(5.0),
	})
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	// The candle spans both levels: the stop fires first, at its level.
	candle := types.Candle{Open: 100, High: 107, Low: 88, Close: 95, Timestamp: time.Now()}

	price, reason, exited := m.CheckCandle(candle)
	s.True(exited)
	s.Equal(types.ExitReasonStoplossHit, reason)
	s.InDelta(90, price, 1e-9)
}

func (s *RiskTestSuite) TestCheckCandleTargetFillsAtLevel() {
	m, err := NewManager(Params{
		StopMode:          StopModeStep,
		InitialStopPoints: optional.Some(10.0),
		TargetPoints:      optional.Some(5.0),
	})
	s.Require().NoError(err)

	m.OnConfirmedEntry(100)

	candle := types.Candle{Open: 100, High: 107, Low: 98, Close: 106, Timestamp: time.Now()}

	price, reason, exited := m.CheckCandle(candle)
	s.True(exited)
	s.Equal(types.ExitReasonTargetHit, reason)
	s.InDelta(105, price, 1e-9)
}

func (s *RiskTestSuite) TestDailyCountersAndHaltLatch() {
	m, err := NewManager(Params{
		StopMode:        StopModeStep,
		DailyMaxLoss:    optional.Some(10.0),
		MaxTradesPerDay: optional.Some(2),
	})
	s.Require().NoError(err)

	s.True(m.CanEnter())

	m.OnConfirmedEntry(100)
	m.OnConfirmedExit(-4)
	s.True(m.CanEnter())
	s.InDelta(-4, m.DailyRealizedPnL(), 1e-9)

	m.OnConfirmedEntry(100)
	m.OnConfirmedExit(3)
	s.Equal(2, m.TradeCountToday())

	// Trade cap reached.
	s.False(m.CanEnter())

	m.ResetDay()
	s.True(m.CanEnter())
	s.Zero(m.TradeCountToday())
	s.Zero(m.DailyRealizedPnL())

	m.OnConfirmedEntry(100)
	m.OnConfirmedExit(-11)
	s.True(m.Halted())
	s.False(m.CanEnter())
}
