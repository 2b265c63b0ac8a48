package indicator

import (
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// histogramWindow is how many recent histogram values policies can inspect.
const histogramWindow = 3

// MACDValue is one emitted momentum state. PrevLine is the MACD line from
// the previous emission, valid once HasPrev is true.
type MACDValue struct {
	Line      float64
	Signal    float64
	Histogram float64
	PrevLine  float64
	HasPrev   bool
}

// ema is an exponential moving average seeded with its first sample.
type ema struct {
	period int
	value  float64
	count  int
}

func (e *ema) update(v float64) float64 {
	e.count++
	if e.count == 1 {
		e.value = v
	} else {
		k := 2.0 / float64(e.period+1)
		e.value = v*k + e.value*(1-k)
	}

	return e.value
}

func (e *ema) reset() {
	e.value = 0
	e.count = 0
}

// MACD is the incremental moving average convergence divergence indicator.
// The line becomes meaningful after slowPeriod closes, the signal and
// histogram after signalPeriod further closes.
type MACD struct {
	fastEMA   ema
	slowEMA   ema
	signalEMA ema

	count   int
	last    MACDValue
	history []float64
}

// NewMACD creates a MACD indicator. Fast period must be strictly smaller
// than slow period.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "all periods must be positive, got fast=%d slow=%d signal=%d", fastPeriod, slowPeriod, signalPeriod)
	}

	if fastPeriod >= slowPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "fast period %d must be smaller than slow period %d", fastPeriod, slowPeriod)
	}

	return &MACD{
		fastEMA:   ema{period: fastPeriod},
		slowEMA:   ema{period: slowPeriod},
		signalEMA: ema{period: signalPeriod},
	}, nil
}

// Reset clears all internal state back to empty/not-ready.
func (m *MACD) Reset() {
	m.fastEMA.reset()
	m.slowEMA.reset()
	m.signalEMA.reset()
	m.count = 0
	m.last = MACDValue{}
	m.history = nil
}

// Ready reports whether both the line and the signal have warmed up.
func (m *MACD) Ready() bool {
	return m.count >= m.slowEMA.period && m.signalEMA.count >= m.signalEMA.period
}

// Last returns the most recently emitted state.
func (m *MACD) Last() (MACDValue, bool) {
	if !m.Ready() {
		return MACDValue{}, false
	}

	return m.last, true
}

// HistogramHistory returns up to the last three emitted histogram values,
// oldest first.
func (m *MACD) HistogramHistory() []float64 {
	out := make([]float64, len(m.history))
	copy(out, m.history)

	return out
}

// Update consumes one closed candle and returns the emitted state, or
// ok=false while still warming up.
func (m *MACD) Update(c types.Candle) (MACDValue, bool) {
	fast := m.fastEMA.update(c.Close)
	slow := m.slowEMA.update(c.Close)
	m.count++

	if m.count < m.slowEMA.period {
		return MACDValue{}, false
	}

	line := fast - slow
	signal := m.signalEMA.update(line)

	if m.signalEMA.count < m.signalEMA.period {
		return MACDValue{}, false
	}

	value := MACDValue{
		Line:      line,
		Signal:    signal,
		Histogram: line - signal,
	}

	if m.last.HasPrev || m.lastEmitted() {
		value.PrevLine = m.last.Line
		value.HasPrev = true
	}

	m.last = value

	m.history = append(m.history, value.Histogram)
	if len(m.history) > histogramWindow {
		m.history = m.history[len(m.history)-histogramWindow:]
	}

	return value, true
}

// lastEmitted reports whether at least one value has been emitted before
// the current update.
func (m *MACD) lastEmitted() bool {
	return len(m.history) > 0
}
