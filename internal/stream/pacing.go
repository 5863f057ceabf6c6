package stream

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Pacing bounds accepted from clients.
const (
	MinInterval = 500 * time.Millisecond
	MaxInterval = 30 * time.Second
)

// ErrInvalidInput is returned for unparsable stream parameters.
var ErrInvalidInput = errors.New("stream: invalid input")

// DefaultPacing is used whenever requested bounds are out of range.
var DefaultPacing = Pacing{Min: 2 * time.Second, Max: 4 * time.Second}

// Presets are the intervals offered by the dashboard.
var Presets = []Pacing{
	{Min: 4 * time.Second, Max: 7 * time.Second},
	{Min: 2 * time.Second, Max: 4 * time.Second},
	{Min: 1 * time.Second, Max: 2 * time.Second},
	{Min: 500 * time.Millisecond, Max: 1 * time.Second},
}

// Pacing is the range message delays are drawn from.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

// Clamp returns p when it lies within [MinInterval, MaxInterval] with Max
// above Min, and [DefaultPacing] otherwise.
func (p Pacing) Clamp() Pacing {
	if p.Min < MinInterval || p.Max > MaxInterval || p.Max <= p.Min {
		return DefaultPacing
	}
	return p
}

// Next draws a delay uniformly from [Min, Max).
func (p Pacing) Next(rng *rand.Rand) time.Duration {
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	return p.Min + time.Duration(rng.Int64N(int64(span)))
}

// String formats the bounds in milliseconds.
func (p Pacing) String() string {
	return fmt.Sprintf("%d-%dms", p.Min.Milliseconds(), p.Max.Milliseconds())
}

// ParsePacing reads millisecond bounds from query values. Missing values
// take the default bound; present values must be integers. The result is
// clamped.
func ParsePacing(minMS, maxMS string) (Pacing, error) {
	p := DefaultPacing
	if s := strings.TrimSpace(minMS); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Pacing{}, fmt.Errorf("%w: min %q is not a number of milliseconds", ErrInvalidInput, minMS)
		}
		p.Min = time.Duration(n) * time.Millisecond
	}
	if s := strings.TrimSpace(maxMS); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Pacing{}, fmt.Errorf("%w: max %q is not a number of milliseconds", ErrInvalidInput, maxMS)
		}
		p.Max = time.Duration(n) * time.Millisecond
	}
	return p.Clamp(), nil
}
