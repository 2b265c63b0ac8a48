package bot

import (
	"sync"
	"time"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// Status is the observable bot state published after every loop iteration.
// Indicator fields are zero until the corresponding indicator has warmed up.
type Status struct {
	Running    bool   `json:"running"`
	MarketOpen bool   `json:"market_open"`
	Halted     bool   `json:"halted"`
	Mode       string `json:"mode"`
	IndexName  string `json:"index_name"`
	Strategy   string `json:"strategy"`

	IndexPrice  float64 `json:"index_price"`
	OptionPrice float64 `json:"option_price"`

	Direction  string  `json:"direction"`
	SuperTrend float64 `json:"supertrend"`
	MACD       float64 `json:"macd"`
	ADX        float64 `json:"adx"`

	Position *types.Position `json:"position,omitempty"`
	Stop     *float64        `json:"stop,omitempty"`

	TradeCountToday  int     `json:"trade_count_today"`
	DailyRealizedPnL float64 `json:"daily_realized_pnl"`

	UpdatedAt time.Time `json:"updated_at"`
}

// StateHub hands status snapshots from the single-writer control loop to
// any number of readers. Readers always get a copy; slow subscribers drop
// updates rather than block the loop.
type StateHub struct {
	mu          sync.RWMutex
	current     Status
	subscribers map[int]chan Status
	nextID      int
}

// NewStateHub creates an empty hub.
func NewStateHub() *StateHub {
	return &StateHub{subscribers: make(map[int]chan Status)}
}

// Snapshot returns a copy of the latest published status.
func (h *StateHub) Snapshot() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return copyStatus(h.current)
}

// Publish stores the status and fans it out to all subscribers.
func (h *StateHub) Publish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = s

	for _, ch := range h.subscribers {
		select {
		case ch <- copyStatus(s):
		default:
		}
	}
}

// Subscribe registers a status stream. The returned cancel function must be
// called to release the channel.
func (h *StateHub) Subscribe() (<-chan Status, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Status, 8)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(ch)
		}
	}

	return ch, cancel
}

// copyStatus deep-copies the pointer fields so readers never alias the
// loop's working state.
func copyStatus(s Status) Status {
	if s.Position != nil {
		pos := *s.Position
		s.Position = &pos
	}

	if s.Stop != nil {
		stop := *s.Stop
		s.Stop = &stop
	}

	return s
}
