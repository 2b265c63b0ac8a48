package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

const (
	defaultDhanBase = "https://api.dhan.co/v2"

	indexSegment  = "IDX_I"
	optionSegment = "NSE_FNO"

	// Data APIs allow one request per second; order APIs are looser.
	quoteRatePerSec = 1
	orderRatePerSec = 10

	fillPollInterval = 500 * time.Millisecond
)

// DhanClient is the REST execution client for the Dhan v2 API.
type DhanClient struct {
	http    *http.Client
	baseURL string

	accessToken string
	clientID    string

	quoteLimiter *rate.Limiter
	orderLimiter *rate.Limiter

	logger *logger.Logger
}

// NewDhanClient creates a Dhan client. An empty baseURL selects production.
func NewDhanClient(accessToken, clientID, baseURL string, log *logger.Logger) (*DhanClient, error) {
	if accessToken == "" || clientID == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "dhan access token and client id are required")
	}

	if baseURL == "" {
		baseURL = defaultDhanBase
	}

	return &DhanClient{
		http:         &http.Client{Timeout: 10 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		accessToken:  accessToken,
		clientID:     clientID,
		quoteLimiter: rate.NewLimiter(quoteRatePerSec, 2),
		orderLimiter: rate.NewLimiter(orderRatePerSec, 5),
		logger:       log,
	}, nil
}

// GetIndexPrice fetches the index last traded price.
func (c *DhanClient) GetIndexPrice(ctx context.Context, index contract.IndexSpec) (float64, error) {
	price, _, err := c.GetContractPrices(ctx, index, nil)

	return price, err
}

type ltpResponse struct {
	Data map[string]map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
	Status string `json:"status"`
}

// GetContractPrices fetches the index price and the requested option
// premiums in one market-feed call. Contracts the venue returns no quote
// for are absent from the map, never zero-filled.
func (c *DhanClient) GetContractPrices(ctx context.Context, index contract.IndexSpec, securityIDs []string) (float64, map[string]float64, error) {
	request := map[string][]int{indexSegment: {mustAtoi(index.SecurityID)}}

	if len(securityIDs) > 0 {
		ids := make([]int, 0, len(securityIDs))
		for _, id := range securityIDs {
			ids = append(ids, mustAtoi(id))
		}

		request[optionSegment] = ids
	}

	var resp ltpResponse
	if err := c.post(ctx, c.quoteLimiter, "/marketfeed/ltp", request, &resp); err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeQuoteFailed, "market feed request failed")
	}

	indexPrice := resp.Data[indexSegment][index.SecurityID].LastPrice
	if indexPrice <= 0 {
		return 0, nil, errors.Newf(errors.ErrCodeQuoteFailed, "no quote for index %s", index.Name)
	}

	prices := make(map[string]float64, len(securityIDs))

	for id, quote := range resp.Data[optionSegment] {
		if quote.LastPrice > 0 {
			prices[id] = quote.LastPrice
		}
	}

	return indexPrice, prices, nil
}

// ResolveNearestExpiry returns the earliest listed expiry, falling back to
// the calendar when the venue list is empty.
func (c *DhanClient) ResolveNearestExpiry(ctx context.Context, index contract.IndexSpec) (string, error) {
	request := map[string]any{
		"UnderlyingScrip": mustAtoi(index.SecurityID),
		"UnderlyingSeg":   indexSegment,
	}

	var resp struct {
		Data []string `json:"data"`
	}

	if err := c.post(ctx, c.quoteLimiter, "/optionchain/expirylist", request, &resp); err != nil {
		c.logger.Warn("expiry list unavailable, using calendar fallback", zap.String("index", index.Name), zap.Error(err))

		return index.FallbackExpiry(time.Now()), nil
	}

	if len(resp.Data) == 0 {
		return index.FallbackExpiry(time.Now()), nil
	}

	return resp.Data[0], nil
}

type optionChainResponse struct {
	Data struct {
		OC map[string]struct {
			CE *struct {
				SecurityID json.Number `json:"security_id"`
			} `json:"ce"`
			PE *struct {
				SecurityID json.Number `json:"security_id"`
			} `json:"pe"`
		} `json:"oc"`
	} `json:"data"`
}

// ResolveContractID looks up the security id of one strike/kind in the
// option chain.
func (c *DhanClient) ResolveContractID(ctx context.Context, index contract.IndexSpec, strike int, kind types.OptionKind, expiry string) (string, error) {
	request := map[string]any{
		"UnderlyingScrip": mustAtoi(index.SecurityID),
		"UnderlyingSeg":   indexSegment,
		"Expiry":          expiry,
	}

	var resp optionChainResponse
	if err := c.post(ctx, c.quoteLimiter, "/optionchain", request, &resp); err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeContractNotFound, "option chain request failed for %s %s", index.Name, expiry)
	}

	// Chain strikes are keyed with six decimal places.
	key := strconv.FormatFloat(float64(strike), 'f', 6, 64)

	row, ok := resp.Data.OC[key]
	if !ok {
		return "", errors.Newf(errors.ErrCodeContractNotFound, "strike %d not in %s chain for %s", strike, index.Name, expiry)
	}

	var id json.Number

	switch {
	case kind == types.OptionKindCE && row.CE != nil:
		id = row.CE.SecurityID
	case kind == types.OptionKindPE && row.PE != nil:
		id = row.PE.SecurityID
	}

	if id.String() == "" || id.String() == "0" {
		return "", errors.Newf(errors.ErrCodeContractNotFound, "no %s contract at %d for %s %s", kind, strike, index.Name, expiry)
	}

	return id.String(), nil
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

// SubmitOrder places an intraday market order.
func (c *DhanClient) SubmitOrder(ctx context.Context, securityID string, side types.OrderSide, qty int) (types.OrderResult, error) {
	request := map[string]any{
		"dhanClientId":    c.clientID,
		"transactionType": string(side),
		"exchangeSegment": optionSegment,
		"productType":     "INTRADAY",
		"orderType":       "MARKET",
		"validity":        "DAY",
		"securityId":      securityID,
		"quantity":        qty,
		"price":           0,
	}

	var resp orderResponse
	if err := c.post(ctx, c.orderLimiter, "/orders", request, &resp); err != nil {
		return types.OrderResult{}, errors.Wrapf(err, errors.ErrCodeOrderFailed, "order submission failed for %s", securityID)
	}

	if resp.OrderID == "" {
		return types.OrderResult{}, errors.Newf(errors.ErrCodeOrderFailed, "no order id in response for %s", securityID)
	}

	c.logger.Info("order submitted",
		zap.String("order_id", resp.OrderID),
		zap.String("security_id", securityID),
		zap.String("side", string(side)),
		zap.Int("qty", qty))

	return types.OrderResult{Status: resp.OrderStatus, OrderID: resp.OrderID}, nil
}

type orderDetailResponse struct {
	OrderStatus         string  `json:"orderStatus"`
	FilledQty           int     `json:"filledQty"`
	AverageTradedPrice  float64 `json:"averageTradedPrice"`
	OmsErrorDescription string  `json:"omsErrorDescription"`
}

// ConfirmFill polls the order until a terminal state or the timeout. A
// pending order at timeout reports filled=false with the last seen status;
// the caller must treat it as not filled.
func (c *DhanClient) ConfirmFill(ctx context.Context, orderID, securityID string, qty int, timeout time.Duration) (types.FillStatus, error) {
	deadline := time.Now().Add(timeout)
	lastStatus := "PENDING"

	for {
		if err := ctx.Err(); err != nil {
			return types.FillStatus{}, errors.Wrap(err, errors.ErrCodeFillNotConfirmed, "fill confirmation cancelled")
		}

		var resp orderDetailResponse

		err := c.get(ctx, c.orderLimiter, "/orders/"+orderID, &resp)
		if err == nil {
			status := strings.ToUpper(resp.OrderStatus)
			lastStatus = status

			switch status {
			case "TRADED", "FILLED":
				return types.FillStatus{
					Filled:   true,
					AvgPrice: resp.AverageTradedPrice,
					Status:   status,
					Message:  fmt.Sprintf("filled %d at %.2f", resp.FilledQty, resp.AverageTradedPrice),
				}, nil
			case "REJECTED":
				return types.FillStatus{
					Filled:  false,
					Status:  status,
					Message: resp.OmsErrorDescription,
				}, nil
			case "CANCELLED":
				return types.FillStatus{Filled: false, Status: status, Message: "order was cancelled"}, nil
			}
		} else {
			c.logger.Debug("order status check failed", zap.String("order_id", orderID), zap.Error(err))
		}

		if time.Now().After(deadline) {
			c.logger.Warn("fill confirmation timed out, manual reconciliation required",
				zap.String("order_id", orderID),
				zap.String("security_id", securityID),
				zap.String("last_status", lastStatus))

			return types.FillStatus{
				Filled:  false,
				Status:  lastStatus,
				Message: fmt.Sprintf("no fill confirmation within %s", timeout),
			}, nil
		}

		select {
		case <-ctx.Done():
			return types.FillStatus{}, errors.Wrap(ctx.Err(), errors.ErrCodeFillNotConfirmed, "fill confirmation cancelled")
		case <-time.After(fillPollInterval):
		}
	}
}

func (c *DhanClient) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return c.do(ctx, limiter, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (c *DhanClient) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	return c.do(ctx, limiter, http.MethodGet, path, nil, out)
}

func (c *DhanClient) do(ctx context.Context, limiter *rate.Limiter, method, path string, body io.Reader, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(data, out)
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)

	return n
}
