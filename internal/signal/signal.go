// Package signal standardizes payloads shared between the strategy layer and
// the simulation loop.
package signal

import "time"

// Kind enumerates the direction of a trading signal.
type Kind string

const (
	Buy  Kind = "BUY"
	Sell Kind = "SELL"
	Hold Kind = "HOLD"
)

// Signal expresses a trading decision produced by a strategy for the latest
// bar of a series. Hold signals carry no portfolio effect; they exist so
// ensemble voting can weigh abstentions.
type Signal struct {
	Ts         time.Time
	Kind       Kind
	Confidence float64 // 0..1
	Price      float64
	Reason     string
	Metadata   map[string]any
}

// Actionable reports whether the signal can move the portfolio.
func (s Signal) Actionable() bool {
	return s.Kind == Buy || s.Kind == Sell
}
