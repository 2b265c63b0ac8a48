// Package contract maps index prices to option strikes and maintains the
// tracked contract universe around the at-the-money strike.
package contract

import (
	"math"
	"time"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// IndexSpec describes one tradable index: its quote identity, lot size,
// strike spacing, and weekly expiry weekday.
type IndexSpec struct {
	Name           string       `yaml:"name" json:"name"`
	DisplayName    string       `yaml:"display_name" json:"display_name"`
	SecurityID     string       `yaml:"security_id" json:"security_id"`
	LotSize        int          `yaml:"lot_size" json:"lot_size"`
	StrikeInterval int          `yaml:"strike_interval" json:"strike_interval"`
	ExpiryWeekday  time.Weekday `yaml:"expiry_weekday" json:"expiry_weekday"`
}

// Indices is the supported index table.
var Indices = map[string]IndexSpec{
	"NIFTY":      {Name: "NIFTY", DisplayName: "Nifty 50", SecurityID: "13", LotSize: 75, StrikeInterval: 50, ExpiryWeekday: time.Tuesday},
	"BANKNIFTY":  {Name: "BANKNIFTY", DisplayName: "Bank Nifty", SecurityID: "25", LotSize: 35, StrikeInterval: 100, ExpiryWeekday: time.Tuesday},
	"FINNIFTY":   {Name: "FINNIFTY", DisplayName: "Fin Nifty", SecurityID: "27", LotSize: 65, StrikeInterval: 50, ExpiryWeekday: time.Tuesday},
	"MIDCPNIFTY": {Name: "MIDCPNIFTY", DisplayName: "Midcap Nifty", SecurityID: "442", LotSize: 140, StrikeInterval: 25, ExpiryWeekday: time.Tuesday},
	"SENSEX":     {Name: "SENSEX", DisplayName: "Sensex", SecurityID: "51", LotSize: 20, StrikeInterval: 100, ExpiryWeekday: time.Thursday},
}

// LookupIndex resolves an index by name.
func LookupIndex(name string) (IndexSpec, error) {
	spec, ok := Indices[name]
	if !ok {
		return IndexSpec{}, errors.Newf(errors.ErrCodeInvalidIndex, "unknown index %q", name)
	}

	return spec, nil
}

// ATMStrike rounds an index price to the nearest strike.
func (s IndexSpec) ATMStrike(price float64) int {
	interval := float64(s.StrikeInterval)

	return int(math.Round(price/interval)) * s.StrikeInterval
}

// FallbackExpiry computes the next weekly expiry date from the calendar,
// used when the broker's expiry list is unavailable. An expiry landing
// today rolls to next week once the session has closed.
func (s IndexSpec) FallbackExpiry(now time.Time) string {
	ist := now.In(types.IST)

	days := (int(s.ExpiryWeekday) - int(ist.Weekday()) + 7) % 7
	if days == 0 {
		if ist.Hour() > 15 || (ist.Hour() == 15 && ist.Minute() >= 30) {
			days = 7
		}
	}

	return ist.AddDate(0, 0, days).Format("2006-01-02")
}
