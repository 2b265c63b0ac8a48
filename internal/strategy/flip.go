package strategy

import "github.com/strikebot-labs/strikebot/internal/types"

// FlipPolicy is the stateless baseline: enter on any trend flip, side
// following the new direction, and exit on any counter-flip.
type FlipPolicy struct{}

// NewFlipPolicy creates the trend-flip baseline policy.
func NewFlipPolicy() *FlipPolicy {
	return &FlipPolicy{}
}

func (p *FlipPolicy) Reset() {}

func (p *FlipPolicy) Decide(snap Snapshot) types.Action {
	if snap.Direction == types.DirectionUnknown || !snap.Flipped {
		return types.ActionHold
	}

	if snap.InPosition {
		return types.ActionExit
	}

	if snap.Direction == types.DirectionBullish {
		return types.ActionEnterCE
	}

	return types.ActionEnterPE
}
