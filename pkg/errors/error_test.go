package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNew() {
	err := New(ErrCodeInvalidParameter, "bad parameter")
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("[100] bad parameter", err.Error())
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewf() {
	err := Newf(ErrCodeDataNotFound, "no candles found for index %s", "NIFTY")
	suite.Equal("[200] no candles found for index NIFTY", err.Error())
}

func (suite *ErrorTestSuite) TestWrap() {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeQuoteFailed, "quote fetch failed")
	suite.Equal("[500] quote fetch failed: connection refused", err.Error())
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestWrapf() {
	cause := fmt.Errorf("timeout")
	err := Wrapf(cause, ErrCodeFillNotConfirmed, "order %s not confirmed", "ORD-1")
	suite.Equal(ErrCodeFillNotConfirmed, GetCode(err))
	suite.ErrorIs(err, cause)
}

func (suite *ErrorTestSuite) TestGetCodeNonStructured() {
	suite.Equal(ErrCodeUnknown, GetCode(fmt.Errorf("plain error")))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodeOrderRejected, "rejected by broker")
	suite.True(HasCode(err, ErrCodeOrderRejected))
	suite.False(HasCode(err, ErrCodeOrderFailed))
}

func (suite *ErrorTestSuite) TestHasCodeWrappedChain() {
	inner := New(ErrCodeBadPrice, "non-positive price")
	outer := fmt.Errorf("tick dropped: %w", inner)
	suite.True(HasCode(outer, ErrCodeBadPrice))
}
