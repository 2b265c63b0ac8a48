package contract

import (
	"sort"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// StrikeContracts is the CE/PE pair tracked at one strike.
type StrikeContracts struct {
	CE types.ContractIdentity
	PE types.ContractIdentity
}

// Universe is the set of tracked strikes around the at-the-money strike:
// exactly one strike with steps=0, or 2n+1 strikes with steps=n. Membership
// is recomputed when the center strike or expiry changes; the caller must
// discard per-strike state for removed strikes.
type Universe struct {
	index IndexSpec
	steps int

	center  int
	expiry  string
	strikes map[int]StrikeContracts
}

// NewUniverse creates an empty universe tracking 2*steps+1 strikes.
func NewUniverse(index IndexSpec, steps int) *Universe {
	return &Universe{
		index:   index,
		steps:   steps,
		strikes: make(map[int]StrikeContracts),
	}
}

// Center returns the current center strike, zero before the first rebuild.
func (u *Universe) Center() int {
	return u.center
}

// Expiry returns the current expiry date string.
func (u *Universe) Expiry() string {
	return u.expiry
}

// Strikes returns the tracked strikes in ascending order.
func (u *Universe) Strikes() []int {
	out := make([]int, 0, len(u.strikes))
	for strike := range u.strikes {
		out = append(out, strike)
	}

	sort.Ints(out)

	return out
}

// Contracts returns the CE/PE pair at a tracked strike.
func (u *Universe) Contracts(strike int) (StrikeContracts, bool) {
	pair, ok := u.strikes[strike]

	return pair, ok
}

// SetSecurityID records a resolved broker identity on a tracked contract.
func (u *Universe) SetSecurityID(strike int, kind types.OptionKind, securityID string) {
	pair, ok := u.strikes[strike]
	if !ok {
		return
	}

	if kind == types.OptionKindCE {
		pair.CE.SecurityID = securityID
	} else {
		pair.PE.SecurityID = securityID
	}

	u.strikes[strike] = pair
}

// Rebuild recenters the universe on the price's ATM strike and expiry.
// Unchanged membership is a no-op. Returns the strikes that entered and
// left so the caller can create and discard per-strike state.
func (u *Universe) Rebuild(indexPrice float64, expiry string) (added, removed []int, changed bool) {
	center := u.index.ATMStrike(indexPrice)
	if center == u.center && expiry == u.expiry {
		return nil, nil, false
	}

	want := make(map[int]struct{}, 2*u.steps+1)
	for i := -u.steps; i <= u.steps; i++ {
		want[center+i*u.index.StrikeInterval] = struct{}{}
	}

	// An expiry change invalidates every tracked contract.
	expiryChanged := expiry != u.expiry

	for strike := range u.strikes {
		if _, keep := want[strike]; !keep || expiryChanged {
			removed = append(removed, strike)
			delete(u.strikes, strike)
		}
	}

	for strike := range want {
		if _, exists := u.strikes[strike]; exists {
			continue
		}

		u.strikes[strike] = StrikeContracts{
			CE: types.ContractIdentity{Strike: strike, Kind: types.OptionKindCE, Expiry: expiry},
			PE: types.ContractIdentity{Strike: strike, Kind: types.OptionKindPE, Expiry: expiry},
		}
		added = append(added, strike)
	}

	sort.Ints(added)
	sort.Ints(removed)

	u.center = center
	u.expiry = expiry

	return added, removed, true
}

// SelectEntry picks one contract from the eligible set: any CE beats any
// PE; within a kind the strike nearest the center wins, ties broken by the
// lower strike.
func (u *Universe) SelectEntry(eligible []types.ContractIdentity) (types.ContractIdentity, bool) {
	if len(eligible) == 0 {
		return types.ContractIdentity{}, false
	}

	best := func(kind types.OptionKind) (types.ContractIdentity, bool) {
		var (
			chosen types.ContractIdentity
			found  bool
		)

		for _, c := range eligible {
			if c.Kind != kind {
				continue
			}

			if !found || u.closer(c.Strike, chosen.Strike) {
				chosen = c
				found = true
			}
		}

		return chosen, found
	}

	if c, ok := best(types.OptionKindCE); ok {
		return c, true
	}

	return best(types.OptionKindPE)
}

// closer reports whether strike a is strictly preferred to strike b:
// nearer the center, or equally near with a lower value.
func (u *Universe) closer(a, b int) bool {
	da := abs(a - u.center)
	db := abs(b - u.center)

	if da != db {
		return da < db
	}

	return a < b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
