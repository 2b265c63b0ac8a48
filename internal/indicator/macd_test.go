package indicator

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/strikebot-labs/strikebot/pkg/errors"
)

type MACDTestSuite struct {
	suite.Suite
}

func TestMACDSuite(t *testing.T) {
	suite.Run(t, new(MACDTestSuite))
}

func (s *MACDTestSuite) TestNewMACDValidation() {
	_, err := NewMACD(0, 26, 9)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidPeriod, errors.GetCode(err))

	_, err = NewMACD(26, 12, 9)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidPeriod, errors.GetCode(err))
}

func (s *MACDTestSuite) TestWarmUp() {
	m, err := NewMACD(2, 3, 2)
	s.Require().NoError(err)

	// Line needs slowPeriod closes, signal needs signalPeriod line values.
	for i := 0; i < 3; i++ {
		_, ok := m.Update(candleAt(i, 100, 100, 100, 100))
		s.False(ok)
		s.False(m.Ready())
	}

	v, ok := m.Update(candleAt(3, 100, 100, 100, 100))
	s.Require().True(ok)
	s.True(m.Ready())
	s.InDelta(0, v.Line, 1e-9)
	s.InDelta(0, v.Signal, 1e-9)
	s.InDelta(0, v.Histogram, 1e-9)
	s.False(v.HasPrev)
}

func (s *MACDTestSuite) TestRisingCloses() {
	m, err := NewMACD(2, 3, 2)
	s.Require().NoError(err)

	closes := []float64{10, 11, 12, 13, 14}

	var last MACDValue

	for i, c := range closes {
		v, ok := m.Update(candleAt(i, c, c, c, c))
		if i >= 3 {
			s.Require().True(ok)
			last = v
		}
	}

	// Fast EMA outruns slow EMA in an uptrend.
	s.Greater(last.Line, 0.0)
	s.True(last.HasPrev)
	s.InDelta(0.39352, last.PrevLine, 1e-4)
	s.InDelta(0.44367, last.Line, 1e-4)
}

func (s *MACDTestSuite) TestHistogramHistoryWindow() {
	m, err := NewMACD(2, 3, 2)
	s.Require().NoError(err)

	for i := 0; i < 10; i++ {
		price := 100 + float64(i)
		m.Update(candleAt(i, price, price, price, price))
	}

	hist := m.HistogramHistory()
	s.Len(hist, 3)

	// The returned slice is a copy.
	hist[0] = -999
	s.NotEqual(-999.0, m.HistogramHistory()[0])
}

func (s *MACDTestSuite) TestReset() {
	m, err := NewMACD(2, 3, 2)
	s.Require().NoError(err)

	for i := 0; i < 6; i++ {
		m.Update(candleAt(i, 100, 100, 100, 100))
	}

	s.True(m.Ready())

	m.Reset()
	s.False(m.Ready())
	s.Empty(m.HistogramHistory())

	_, ok := m.Update(candleAt(6, 100, 100, 100, 100))
	s.False(ok)
}
