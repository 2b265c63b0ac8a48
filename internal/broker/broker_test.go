package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

type BrokerTestSuite struct {
	suite.Suite
	nifty contract.IndexSpec
	log   *logger.Logger
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerTestSuite))
}

func (s *BrokerTestSuite) SetupTest() {
	spec, err := contract.LookupIndex("NIFTY")
	s.Require().NoError(err)
	s.nifty = spec

	log, err := logger.NewDevelopmentLogger()
	s.Require().NoError(err)
	s.log = log
}

func (s *BrokerTestSuite) TestRoundTick() {
	s.InDelta(102.35, RoundTick(102.37), 1e-9)
	s.InDelta(102.40, RoundTick(102.38), 1e-9)
	s.InDelta(0.05, RoundTick(0.06), 1e-9)
}

func (s *BrokerTestSuite) TestSynthesizePremium() {
	// ATM call: pure time value.
	s.InDelta(150.0, SynthesizePremium(24400, 24400, types.OptionKindCE), 1e-9)

	// In the money by 100 with decayed time value: 100 + 150*(1-100/500).
	s.InDelta(220.0, SynthesizePremium(24500, 24400, types.OptionKindCE), 1e-9)

	// Deep out of the money floors at one tick.
	s.InDelta(0.05, SynthesizePremium(24400, 25500, types.OptionKindCE), 1e-9)

	// Put intrinsic mirrors the call.
	s.InDelta(220.0, SynthesizePremium(24300, 24400, types.OptionKindPE), 1e-9)
}

func (s *BrokerTestSuite) TestDhanClientRequiresCredentials() {
	_, err := NewDhanClient("", "", "", s.log)
	s.Error(err)
}

func (s *BrokerTestSuite) TestDhanGetContractPrices() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/marketfeed/ltp", r.URL.Path)
		s.Equal("token", r.Header.Get("access-token"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"IDX_I":   map[string]any{"13": map[string]any{"last_price": 24412.5}},
				"NSE_FNO": map[string]any{"41729": map[string]any{"last_price": 182.4}, "41730": map[string]any{"last_price": 0}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewDhanClient("token", "client", srv.URL, s.log)
	s.Require().NoError(err)

	indexPrice, prices, err := c.GetContractPrices(context.Background(), s.nifty, []string{"41729", "41730"})
	s.Require().NoError(err)
	s.InDelta(24412.5, indexPrice, 1e-9)
	s.InDelta(182.4, prices["41729"], 1e-9)

	// Zero quotes are dropped, not passed through.
	_, ok := prices["41730"]
	s.False(ok)
}

func (s *BrokerTestSuite) TestDhanConfirmFillTerminalStates() {
	status := "PENDING"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"orderStatus":        status,
			"filledQty":          75,
			"averageTradedPrice": 181.9,
		})
	}))
	defer srv.Close()

	c, err := NewDhanClient("token", "client", srv.URL, s.log)
	s.Require().NoError(err)

	status = "TRADED"

	fill, err := c.ConfirmFill(context.Background(), "1001", "41729", 75, 5*time.Second)
	s.Require().NoError(err)
	s.True(fill.Filled)
	s.InDelta(181.9, fill.AvgPrice, 1e-9)

	status = "REJECTED"

	fill, err = c.ConfirmFill(context.Background(), "1002", "41729", 75, 5*time.Second)
	s.Require().NoError(err)
	s.False(fill.Filled)
	s.Equal("REJECTED", fill.Status)
}

func (s *BrokerTestSuite) TestDhanConfirmFillTimeout() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"orderStatus": "PENDING"})
	}))
	defer srv.Close()

	c, err := NewDhanClient("token", "client", srv.URL, s.log)
	s.Require().NoError(err)

	fill, err := c.ConfirmFill(context.Background(), "1003", "41729", 75, 100*time.Millisecond)
	s.Require().NoError(err)

	// A timeout is never treated as a fill.
	s.False(fill.Filled)
	s.Equal("PENDING", fill.Status)
}

func (s *BrokerTestSuite) TestPaperOrderLifecycle() {
	c := NewPaperClient(nil, s.log)

	id, err := c.ResolveContractID(context.Background(), s.nifty, 24400, types.OptionKindCE, "2025-06-03")
	s.Require().NoError(err)
	s.Contains(id, "PAPER-NIFTY-24400-CE")

	result, err := c.SubmitOrder(context.Background(), id, types.OrderSideBuy, 75)
	s.Require().NoError(err)
	s.Equal("success", result.Status)
	s.NotEmpty(result.OrderID)

	// No price ever observed: the fill must not be fabricated.
	fill, err := c.ConfirmFill(context.Background(), result.OrderID, id, 75, time.Second)
	s.Require().NoError(err)
	s.False(fill.Filled)
}

func (s *BrokerTestSuite) TestPaperSynthesizesQuoteGaps() {
	inner := &staticQuoteClient{indexPrice: 24500}
	c := NewPaperClient(inner, s.log)

	id, err := c.ResolveContractID(context.Background(), s.nifty, 24400, types.OptionKindCE, "2025-06-03")
	s.Require().NoError(err)

	indexPrice, prices, err := c.GetContractPrices(context.Background(), s.nifty, []string{id})
	s.Require().NoError(err)
	s.InDelta(24500, indexPrice, 1e-9)
	s.InDelta(220.0, prices[id], 1e-9)

	fill, err := c.ConfirmFill(context.Background(), "PAPER-any", id, 75, time.Second)
	s.Require().NoError(err)
	s.True(fill.Filled)
	s.InDelta(220.0, fill.AvgPrice, 1e-9)
}

// staticQuoteClient stubs the quote side of the venue.
type staticQuoteClient struct {
	indexPrice float64
}

func (c *staticQuoteClient) GetIndexPrice(ctx context.Context, index contract.IndexSpec) (float64, error) {
	return c.indexPrice, nil
}

func (c *staticQuoteClient) GetContractPrices(ctx context.Context, index contract.IndexSpec, securityIDs []string) (float64, map[string]float64, error) {
	return c.indexPrice, map[string]float64{}, nil
}

func (c *staticQuoteClient) ResolveNearestExpiry(ctx context.Context, index contract.IndexSpec) (string, error) {
	return "2025-06-03", nil
}

func (c *staticQuoteClient) ResolveContractID(ctx context.Context, index contract.IndexSpec, strike int, kind types.OptionKind, expiry string) (string, error) {
	return "", errors.New(errors.ErrCodeContractNotFound, "contract not listed")
}

func (c *staticQuoteClient) SubmitOrder(ctx context.Context, securityID string, side types.OrderSide, qty int) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}

func (c *staticQuoteClient) ConfirmFill(ctx context.Context, orderID, securityID string, qty int, timeout time.Duration) (types.FillStatus, error) {
	return types.FillStatus{}, nil
}
