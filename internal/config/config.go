// Package config loads and validates the bot configuration from a YAML
// file, with broker credentials supplied through the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/strikebot-labs/strikebot/internal/contract"
	"github.com/strikebot-labs/strikebot/internal/risk"
	"github.com/strikebot-labs/strikebot/internal/strategy"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// validTimeframes are the supported candle windows in seconds.
var validTimeframes = map[int]bool{5: true, 15: true, 30: true, 60: true, 300: true, 900: true}

// Config is the complete bot configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker" json:"broker"`
	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Risk     RiskConfig     `yaml:"risk" json:"risk"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
}

// RiskConfig is the YAML shape of the risk thresholds. An absent key means
// the check is disabled; Params converts to the optional-typed runtime
// form.
type RiskConfig struct {
	StopMode          string   `yaml:"stop_mode" json:"stop_mode"`
	InitialStopPoints *float64 `yaml:"initial_stop_points" json:"initial_stop_points"`
	MaxLossPerTrade   *float64 `yaml:"max_loss_per_trade" json:"max_loss_per_trade"`
	TargetPoints      *float64 `yaml:"target_points" json:"target_points"`
	TrailStartProfit  *float64 `yaml:"trail_start_profit" json:"trail_start_profit"`
	TrailStep         *float64 `yaml:"trail_step" json:"trail_step"`
	LockPoints        *float64 `yaml:"lock_points" json:"lock_points"`
	DailyMaxLoss      *float64 `yaml:"daily_max_loss" json:"daily_max_loss"`
	MaxTradesPerDay   *int     `yaml:"max_trades_per_day" json:"max_trades_per_day"`
}

// Params converts to the runtime risk parameters.
func (c RiskConfig) Params() risk.Params {
	return risk.Params{
		StopMode:          risk.StopMode(c.StopMode),
		InitialStopPoints: fromPtr(c.InitialStopPoints),
		MaxLossPerTrade:   fromPtr(c.MaxLossPerTrade),
		TargetPoints:      fromPtr(c.TargetPoints),
		TrailStartProfit:  fromPtr(c.TrailStartProfit),
		TrailStep:         fromPtr(c.TrailStep),
		LockPoints:        fromPtr(c.LockPoints),
		DailyMaxLoss:      fromPtr(c.DailyMaxLoss),
		MaxTradesPerDay:   fromPtr(c.MaxTradesPerDay),
	}
}

func fromPtr[T any](p *T) optional.Option[T] {
	if p == nil {
		return optional.None[T]()
	}

	return optional.Some(*p)
}

func ptr[T any](v T) *T {
	return &v
}

// BrokerConfig holds venue credentials and tunables. Credentials come from
// the environment, never from the YAML file.
type BrokerConfig struct {
	AccessToken        string `yaml:"-" json:"-"`
	ClientID           string `yaml:"-" json:"-"`
	BaseURL            string `yaml:"base_url" json:"base_url"`
	FillTimeoutSeconds int    `yaml:"fill_timeout_seconds" json:"fill_timeout_seconds" validate:"gt=0"`
}

// FillTimeout returns the fill confirmation timeout as a duration.
func (c BrokerConfig) FillTimeout() time.Duration {
	return time.Duration(c.FillTimeoutSeconds) * time.Second
}

// TradingConfig selects the instrument and trading mode.
type TradingConfig struct {
	Index            string `yaml:"index" json:"index" validate:"required"`
	Mode             string `yaml:"mode" json:"mode" validate:"oneof=paper live"`
	TimeframeSeconds int    `yaml:"timeframe_seconds" json:"timeframe_seconds"`
	OrderQtyLots     int    `yaml:"order_qty_lots" json:"order_qty_lots" validate:"gt=0"`
	// UniverseSteps is the strike band half-width; 0 tracks the single
	// ATM strike.
	UniverseSteps int `yaml:"universe_steps" json:"universe_steps" validate:"gte=0"`
}

// Timeframe returns the candle window as a duration.
func (c TradingConfig) Timeframe() time.Duration {
	return time.Duration(c.TimeframeSeconds) * time.Second
}

// StrategyConfig selects the decision policy and indicator tuning.
type StrategyConfig struct {
	Mode strategy.Mode `yaml:"mode" json:"mode" validate:"oneof=agent flip histogram"`

	SuperTrendPeriod     int     `yaml:"supertrend_period" json:"supertrend_period" validate:"gt=0"`
	SuperTrendMultiplier float64 `yaml:"supertrend_multiplier" json:"supertrend_multiplier" validate:"gt=0"`
	MACDFastPeriod       int     `yaml:"macd_fast_period" json:"macd_fast_period" validate:"gt=0"`
	MACDSlowPeriod       int     `yaml:"macd_slow_period" json:"macd_slow_period" validate:"gt=0"`
	MACDSignalPeriod     int     `yaml:"macd_signal_period" json:"macd_signal_period" validate:"gt=0"`
	ADXPeriod            int     `yaml:"adx_period" json:"adx_period" validate:"gt=0"`

	AgentADXMin       float64 `yaml:"agent_adx_min" json:"agent_adx_min"`
	AgentWaveResetAbs float64 `yaml:"agent_wave_reset_abs" json:"agent_wave_reset_abs" validate:"gte=0"`
	HistogramBandLow  float64 `yaml:"histogram_band_low" json:"histogram_band_low"`
	HistogramBandHigh float64 `yaml:"histogram_band_high" json:"histogram_band_high"`
	AgentStatePath    string  `yaml:"agent_state_path" json:"agent_state_path"`
	PersistAgentState bool    `yaml:"persist_agent_state" json:"persist_agent_state"`
}

// ServerConfig is the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port" validate:"gt=0,lte=65535"`
}

// StorageConfig locates the trade ledger database.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

var validate = validator.New()

// Load reads the YAML file at path, overlays environment credentials from
// the process environment and any .env file, applies defaults, and
// validates. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, errors.ErrCodeInvalidConfiguration, "failed to parse config file %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.ErrCodeInvalidConfiguration, "failed to read config file %s", path)
		}
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the full configuration, including the cross-field rules
// the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfiguration, "invalid configuration")
	}

	if _, err := contract.LookupIndex(c.Trading.Index); err != nil {
		return err
	}

	if !validTimeframes[c.Trading.TimeframeSeconds] {
		return errors.Newf(errors.ErrCodeInvalidInterval, "unsupported timeframe %ds", c.Trading.TimeframeSeconds)
	}

	if c.Strategy.MACDFastPeriod >= c.Strategy.MACDSlowPeriod {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "macd fast period %d must be below slow period %d", c.Strategy.MACDFastPeriod, c.Strategy.MACDSlowPeriod)
	}

	if c.Strategy.Mode == strategy.ModeHistogram && c.Strategy.HistogramBandLow >= c.Strategy.HistogramBandHigh {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "histogram band low %f must be below high %f", c.Strategy.HistogramBandLow, c.Strategy.HistogramBandHigh)
	}

	return c.Risk.Params().Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DHAN_ACCESS_TOKEN"); v != "" {
		cfg.Broker.AccessToken = v
	}

	if v := os.Getenv("DHAN_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Broker.FillTimeoutSeconds <= 0 {
		cfg.Broker.FillTimeoutSeconds = 15
	}

	if cfg.Trading.Index == "" {
		cfg.Trading.Index = "NIFTY"
	}

	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}

	if cfg.Trading.TimeframeSeconds == 0 {
		cfg.Trading.TimeframeSeconds = 60
	}

	if cfg.Trading.OrderQtyLots <= 0 {
		cfg.Trading.OrderQtyLots = 1
	}

	if cfg.Risk.StopMode == "" {
		cfg.Risk.StopMode = string(risk.StopModeStep)
	}

	if cfg.Risk.InitialStopPoints == nil {
		cfg.Risk.InitialStopPoints = ptr(50.0)
	}

	if cfg.Risk.DailyMaxLoss == nil {
		cfg.Risk.DailyMaxLoss = ptr(2000.0)
	}

	if cfg.Risk.MaxTradesPerDay == nil {
		cfg.Risk.MaxTradesPerDay = ptr(5)
	}

	if cfg.Strategy.Mode == "" {
		cfg.Strategy.Mode = strategy.ModeAgent
	}

	if cfg.Strategy.SuperTrendPeriod == 0 {
		cfg.Strategy.SuperTrendPeriod = 7
	}

	if cfg.Strategy.SuperTrendMultiplier == 0 {
		cfg.Strategy.SuperTrendMultiplier = 4
	}

	if cfg.Strategy.MACDFastPeriod == 0 {
		cfg.Strategy.MACDFastPeriod = 12
	}

	if cfg.Strategy.MACDSlowPeriod == 0 {
		cfg.Strategy.MACDSlowPeriod = 26
	}

	if cfg.Strategy.MACDSignalPeriod == 0 {
		cfg.Strategy.MACDSignalPeriod = 9
	}

	if cfg.Strategy.ADXPeriod == 0 {
		cfg.Strategy.ADXPeriod = 14
	}

	if cfg.Strategy.AgentADXMin == 0 {
		cfg.Strategy.AgentADXMin = 20
	}

	if cfg.Strategy.AgentWaveResetAbs == 0 {
		cfg.Strategy.AgentWaveResetAbs = 0.05
	}

	if cfg.Strategy.HistogramBandLow == 0 && cfg.Strategy.HistogramBandHigh == 0 {
		cfg.Strategy.HistogramBandLow = 0.5
		cfg.Strategy.HistogramBandHigh = 1.25
	}

	if cfg.Strategy.AgentStatePath == "" {
		cfg.Strategy.AgentStatePath = "agent_state.json"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "strikebot.db"
	}
}
