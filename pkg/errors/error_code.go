package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidType          ErrorCode = 102
	ErrCodeInvalidPeriod        ErrorCode = 103
	ErrCodeInvalidMultiplier    ErrorCode = 104
	ErrCodeInvalidThreshold     ErrorCode = 105
	ErrCodeInvalidInterval      ErrorCode = 106
	ErrCodeInvalidStrategyMode  ErrorCode = 107
	ErrCodeInvalidRiskMode      ErrorCode = 108
	ErrCodeInvalidIndex         ErrorCode = 109
	ErrCodeInvalidOrder         ErrorCode = 110
	ErrCodeMissingParameter     ErrorCode = 111

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound     ErrorCode = 200
	ErrCodeQueryFailed      ErrorCode = 201
	ErrCodeBadTimestamp     ErrorCode = 202
	ErrCodeBadPrice         ErrorCode = 203
	ErrCodeDataSourceFailed ErrorCode = 204
	ErrCodeNoCandleData     ErrorCode = 205

	// Indicator errors (300-399)
	ErrCodeIndicatorNotReady    ErrorCode = 300
	ErrCodeIndicatorCalculation ErrorCode = 301

	// Strategy errors (400-499)
	ErrCodeStrategyNotConfigured ErrorCode = 400
	ErrCodeAgentStateCorrupt     ErrorCode = 401

	// Trading/broker errors (500-599)
	ErrCodeQuoteFailed        ErrorCode = 500
	ErrCodeOrderFailed        ErrorCode = 501
	ErrCodeOrderRejected      ErrorCode = 502
	ErrCodeFillNotConfirmed   ErrorCode = 503
	ErrCodeContractNotFound   ErrorCode = 504
	ErrCodeExpiryNotFound     ErrorCode = 505
	ErrCodePositionNotFound   ErrorCode = 506
	ErrCodePositionAlreadySet ErrorCode = 507
	ErrCodeTradingHalted      ErrorCode = 508

	// Backtest errors (600-699)
	ErrCodeBacktestConfigError ErrorCode = 600
	ErrCodeBacktestDataError   ErrorCode = 601

	// Storage errors (700-799)
	ErrCodeStorageFailed ErrorCode = 700
)
