package types

import "time"

// IST is the exchange-local timezone. Candle buckets and the daily session
// boundary are computed against this fixed offset.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Tick is a single observed price for one instrument.
type Tick struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Candle is a fixed-window OHLC aggregate. Immutable once closed.
type Candle struct {
	Open      float64   `yaml:"open" json:"open" csv:"open"`
	High      float64   `yaml:"high" json:"high" csv:"high"`
	Low       float64   `yaml:"low" json:"low" csv:"low"`
	Close     float64   `yaml:"close" json:"close" csv:"close"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
}

// Direction is the trend-band indicator direction.
type Direction int

const (
	DirectionUnknown Direction = 0
	DirectionBullish Direction = 1
	DirectionBearish Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionBullish:
		return "GREEN"
	case DirectionBearish:
		return "RED"
	default:
		return "UNKNOWN"
	}
}
