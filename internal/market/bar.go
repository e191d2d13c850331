// Package market defines the bar series consumed by strategies and the
// simulation loop. Bars are produced externally and treated as read-only.
package market

import (
	"errors"
	"time"
)

// Bar is a single OHLCV record plus optional precomputed indicator columns.
type Bar struct {
	Ts         time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

// Indicator looks up an optional indicator column on the bar.
func (b Bar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}

// Series is an ordered, time-indexed sequence of bars.
type Series []Bar

// ErrUnordered reports bars out of ascending timestamp order or with
// duplicate timestamps.
var ErrUnordered = errors.New("market: bars must be strictly ascending by timestamp")

// NewSeries validates ordering and returns the bars as a Series.
func NewSeries(bars []Bar) (Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			return nil, ErrUnordered
		}
	}
	return Series(bars), nil
}

// Last returns the most recent bar. The second result is false for an empty
// series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Prefix returns the first n bars, or the whole series when n exceeds its
// length.
func (s Series) Prefix(n int) Series {
	if n > len(s) {
		n = len(s)
	}
	if n < 0 {
		n = 0
	}
	return s[:n]
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Returns computes simple close-to-close returns; length is len(s)-1.
func (s Series) Returns() []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev := s[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, s[i].Close/prev-1)
	}
	return out
}

// Between returns the half-open [start, end) sub-series by timestamp. A zero
// start or end leaves that bound unconstrained.
func (s Series) Between(start, end time.Time) Series {
	lo := 0
	for lo < len(s) && !start.IsZero() && s[lo].Ts.Before(start) {
		lo++
	}
	hi := len(s)
	for hi > lo && !end.IsZero() && !s[hi-1].Ts.Before(end) {
		hi--
	}
	return s[lo:hi]
}
