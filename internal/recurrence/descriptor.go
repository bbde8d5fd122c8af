package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned for malformed frequencies, counts or windows.
var ErrInvalidArgument = errors.New("recurrence: invalid argument")

// MaxCount caps a series at one year of daily occurrences.
const MaxCount = 366

// Frequency is how often a session repeats.
type Frequency string

const (
	FrequencyNone   Frequency = "none"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency accepts the lower- or upper-case frequency name. An empty
// string means no recurrence.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FrequencyNone):
		return FrequencyNone, nil
	case string(FrequencyDaily):
		return FrequencyDaily, nil
	case string(FrequencyWeekly):
		return FrequencyWeekly, nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidArgument, s)
	}
}

// Descriptor is the compact recurrence rule stored on a session:
// either no recurrence, or Daily/Weekly with a positive occurrence count.
// The zero value is "no recurrence".
type Descriptor struct {
	freq  Frequency
	count int
}

// None returns the descriptor of a one-off session.
func None() Descriptor {
	return Descriptor{}
}

// Daily returns a daily rule; count is clamped to at least 1.
func Daily(count int) Descriptor {
	return Descriptor{freq: FrequencyDaily, count: clampCount(count)}
}

// Weekly returns a weekly rule; count is clamped to at least 1.
func Weekly(count int) Descriptor {
	return Descriptor{freq: FrequencyWeekly, count: clampCount(count)}
}

// ToDescriptor builds a descriptor from a frequency and a count. An empty or
// none frequency yields None regardless of count.
func ToDescriptor(freq Frequency, count int) (Descriptor, error) {
	switch freq {
	case "", FrequencyNone:
		return None(), nil
	case FrequencyDaily:
		return Daily(count), nil
	case FrequencyWeekly:
		return Weekly(count), nil
	default:
		return Descriptor{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidArgument, freq)
	}
}

// FromDescriptor is the inverse of ToDescriptor.
func FromDescriptor(d Descriptor) (Frequency, int) {
	return d.Frequency(), d.Count()
}

// Frequency returns FrequencyNone for the zero descriptor.
func (d Descriptor) Frequency() Frequency {
	if d.freq == "" {
		return FrequencyNone
	}
	return d.freq
}

// Count is the number of occurrences the rule produces (1 for None).
func (d Descriptor) Count() int {
	if d.IsNone() {
		return 1
	}
	return d.count
}

// IsNone reports whether the descriptor means "no recurrence".
func (d Descriptor) IsNone() bool {
	return d.freq == "" || d.freq == FrequencyNone
}

// Encode renders the descriptor as "DAILY;COUNT=n" / "WEEKLY;COUNT=n".
// None encodes to the empty string.
func (d Descriptor) Encode() string {
	if d.IsNone() {
		return ""
	}
	return strings.ToUpper(string(d.freq)) + ";COUNT=" + strconv.Itoa(d.count)
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	if d.IsNone() {
		return string(FrequencyNone)
	}
	return d.Encode()
}

// Decode parses the output of Encode.
func Decode(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None(), nil
	}

	freqPart, countPart, ok := strings.Cut(s, ";")
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: malformed rule %q", ErrInvalidArgument, s)
	}

	freq, err := ParseFrequency(freqPart)
	if err != nil {
		return Descriptor{}, err
	}

	key, value, ok := strings.Cut(countPart, "=")
	if !ok || !strings.EqualFold(key, "COUNT") {
		return Descriptor{}, fmt.Errorf("%w: malformed rule %q", ErrInvalidArgument, s)
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: invalid count in rule %q", ErrInvalidArgument, s)
	}
	if err := checkCount(count); err != nil {
		return Descriptor{}, err
	}

	return ToDescriptor(freq, count)
}

// MarshalText implements encoding.TextMarshaler.
func (d Descriptor) MarshalText() ([]byte, error) {
	return []byte(d.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Descriptor) UnmarshalText(text []byte) error {
	parsed, err := Decode(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func checkCount(count int) error {
	if count < 1 {
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidArgument, count)
	}
	if count > MaxCount {
		return fmt.Errorf("%w: count must be at most %d, got %d", ErrInvalidArgument, MaxCount, count)
	}
	return nil
}

func clampCount(count int) int {
	if count < 1 {
		return 1
	}
	return count
}
