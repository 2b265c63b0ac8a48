package candle

import (
	"time"

	"github.com/strikebot-labs/strikebot/internal/types"
)

// Resample aggregates a candle series into coarser fixed windows. Bucket
// boundaries are truncated against the IST day, so a 5m resample of a
// session starting 09:15 produces buckets 09:15, 09:20 and so on. Input is
// assumed time-ordered; output buckets carry the bucket start timestamp.
func Resample(candles []types.Candle, interval time.Duration) []types.Candle {
	if interval <= 0 || len(candles) == 0 {
		return nil
	}

	var out []types.Candle

	var (
		current  types.Candle
		haveOpen bool
		bucket   time.Time
	)

	for _, c := range candles {
		start := bucketStart(c.Timestamp, interval)

		if !haveOpen || !start.Equal(bucket) {
			if haveOpen {
				out = append(out, current)
			}

			bucket = start
			current = c
			current.Timestamp = start
			haveOpen = true

			continue
		}

		if c.High > current.High {
			current.High = c.High
		}

		if c.Low < current.Low {
			current.Low = c.Low
		}

		current.Close = c.Close
	}

	if haveOpen {
		out = append(out, current)
	}

	return out
}

// bucketStart floors a timestamp to its interval bucket within the IST day.
func bucketStart(ts time.Time, interval time.Duration) time.Time {
	local := ts.In(types.IST)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, types.IST)
	offset := local.Sub(midnight)

	return midnight.Add(offset - offset%interval)
}
