package recurrence

import (
	"fmt"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Window is one concrete [StartsAt, EndsAt) meeting interval.
type Window struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Duration returns EndsAt - StartsAt.
func (w Window) Duration() time.Duration {
	return w.EndsAt.Sub(w.StartsAt)
}

// Overlaps uses inclusive boundaries: windows that only touch at an endpoint
// still overlap.
func (w Window) Overlaps(other Window) bool {
	return !w.StartsAt.After(other.EndsAt) && !w.EndsAt.Before(other.StartsAt)
}

// Expand produces count windows starting at [start, end), each shifted by k
// days (Daily) or k weeks (Weekly). None always yields a single window.
// Stored instants are authoritative: shifts are fixed 24h multiples, not
// wall-clock date arithmetic.
func Expand(start, end time.Time, freq Frequency, count int) ([]Window, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s",
			ErrInvalidArgument, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var step time.Duration
	switch freq {
	case "", FrequencyNone:
		return []Window{{StartsAt: start, EndsAt: end}}, nil
	case FrequencyDaily:
		step = day
	case FrequencyWeekly:
		step = week
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidArgument, freq)
	}

	if err := checkCount(count); err != nil {
		return nil, err
	}

	windows := make([]Window, 0, count)
	for k := 0; k < count; k++ {
		shift := time.Duration(k) * step
		windows = append(windows, Window{
			StartsAt: start.Add(shift),
			EndsAt:   end.Add(shift),
		})
	}

	return windows, nil
}

// Expand is a convenience wrapper around the package-level Expand.
func (d Descriptor) Expand(start, end time.Time) ([]Window, error) {
	return Expand(start, end, d.Frequency(), d.Count())
}
