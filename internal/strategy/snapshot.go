// Package strategy implements the interchangeable entry/exit decision
// policies. Every policy is pure given its snapshot and, for the wave-lock
// agent, its persisted lock state; policies perform no I/O.
package strategy

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// Mode selects the decision policy variant.
type Mode string

const (
	// ModeAgent is the threshold+momentum wave-lock agent.
	ModeAgent Mode = "agent"
	// ModeFlip enters and exits on every trend direction flip.
	ModeFlip Mode = "flip"
	// ModeHistogram is the per-contract oscillator-slope policy that feeds
	// the contract selector.
	ModeHistogram Mode = "histogram"
)

// Snapshot is the full per-candle input to a decision policy. Indicator
// fields are None until the corresponding indicator has warmed up.
type Snapshot struct {
	Timestamp time.Time
	Candle    types.Candle

	Direction types.Direction
	Flipped   bool

	ADX optional.Option[float64]

	MACDCurrent  optional.Option[float64]
	MACDPrevious optional.Option[float64]

	// HistogramHistory is the last few oscillator histogram values,
	// oldest first.
	HistogramHistory []float64

	InPosition   bool
	PositionKind types.OptionKind
}

// Policy decides one action per closed candle.
type Policy interface {
	Decide(snap Snapshot) types.Action
	Reset()
}
