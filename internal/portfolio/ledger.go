// Package portfolio is the authoritative cash, position, and trade
// bookkeeping for a simulated account. Nothing outside this package mutates
// capital state.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantsim/internal/metrics"
)

const epsilon = 1e-9

// Side enumerates trade directions.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ErrInsufficientFunds reports a buy that would drive cash negative. Callers
// must pre-clamp quantity; the ledger never clamps on their behalf.
var ErrInsufficientFunds = errors.New("portfolio: insufficient cash for buy")

// Trade is an immutable record of one completed fill.
type Trade struct {
	ID         string
	Ts         time.Time
	Symbol     string
	Side       Side
	Qty        float64
	Price      float64
	Commission float64
	Slippage   float64
	Strategy   string
	Reason     string
	Confidence float64
	Realized   float64 // closed PnL contribution, set on reducing fills
}

// Position is the current holding in one symbol. Values are replaced
// wholesale on every update; a position whose quantity returns to zero is
// removed from the ledger.
type Position struct {
	Symbol       string
	Qty          float64 // signed; >0 long, <0 short
	AvgEntry     float64
	EntryTs      time.Time
	CurrentPrice float64
	Unrealized   float64
}

// MarketValue is the signed mark value of the position.
func (p Position) MarketValue() float64 { return p.Qty * p.CurrentPrice }

// Snapshot captures portfolio state at the end of one simulated bar.
// Snapshots are append-only; history is never edited retroactively.
type Snapshot struct {
	Ts             time.Time
	Cash           float64
	PositionsValue float64
	TotalValue     float64
	Unrealized     float64
	TotalReturn    float64
	Drawdown       float64
	NumPositions   int
}

// Ledger tracks cash, per-symbol positions, the append-only trade log, and
// the snapshot history used for drawdown and performance analytics.
type Ledger struct {
	mu              sync.Mutex
	initialCapital  float64
	cash            float64
	positions       map[string]Position
	trades          []Trade
	history         []Snapshot
	peak            float64
	maxDrawdown     float64
	totalCommission float64
	totalSlippage   float64
	realized        float64
}

// NewLedger constructs a ledger funded with the initial capital.
func NewLedger(initialCapital float64) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("portfolio: initial capital must be positive, got %.2f", initialCapital)
	}
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]Position),
		peak:           initialCapital,
	}, nil
}

// InitialCapital returns the starting bankroll.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// Cash returns free cash.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Order is a fill request the ledger can book. CommissionRate and
// SlippageRate are fractions of notional.
type Order struct {
	Ts             time.Time
	Symbol         string
	Side           Side
	Qty            float64
	Price          float64
	Strategy       string
	Reason         string
	Confidence     float64
	CommissionRate float64
	SlippageRate   float64
}

// ExecuteTrade books one fill: it debits or credits cash including
// commission and slippage, updates the symbol's position using a
// volume-weighted average entry, and appends the immutable trade record.
func (l *Ledger) ExecuteTrade(o Order) (Trade, error) {
	if o.Qty <= 0 {
		return Trade{}, errors.New("portfolio: quantity must be positive")
	}
	if o.Price <= 0 {
		return Trade{}, errors.New("portfolio: price must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := o.Qty * o.Price
	commission := notional * o.CommissionRate
	slippage := notional * o.SlippageRate

	if o.Side == Buy && notional+commission+slippage > l.cash+epsilon {
		return Trade{}, ErrInsufficientFunds
	}

	ts := o.Ts
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	trade := Trade{
		ID:         uuid.NewString(),
		Ts:         ts,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        o.Qty,
		Price:      o.Price,
		Commission: commission,
		Slippage:   slippage,
		Strategy:   o.Strategy,
		Reason:     o.Reason,
		Confidence: o.Confidence,
	}

	netQty := o.Qty
	if o.Side == Sell {
		netQty = -o.Qty
		l.cash += notional - commission - slippage
	} else {
		l.cash -= notional + commission + slippage
	}

	trade.Realized = l.applyFill(o.Symbol, netQty, o.Price, trade.Ts)
	l.realized += trade.Realized
	l.trades = append(l.trades, trade)
	l.totalCommission += commission
	l.totalSlippage += slippage

	metrics.TradesTotal.WithLabelValues(o.Symbol, string(o.Side)).Inc()
	return trade, nil
}

// applyFill merges a signed fill into the symbol's position and returns the
// realized PnL of any reduced exposure. Positions are replaced wholesale, and
// a net-zero result removes the entry.
func (l *Ledger) applyFill(symbol string, netQty, price float64, ts time.Time) float64 {
	pos, held := l.positions[symbol]
	if !held {
		l.positions[symbol] = Position{
			Symbol:       symbol,
			Qty:          netQty,
			AvgEntry:     price,
			EntryTs:      ts,
			CurrentPrice: price,
		}
		return 0
	}

	sameDirection := pos.Qty*netQty > 0
	if sameDirection {
		total := pos.Qty + netQty
		avg := (pos.AvgEntry*pos.Qty + price*netQty) / total
		l.positions[symbol] = Position{
			Symbol:       symbol,
			Qty:          total,
			AvgEntry:     avg,
			EntryTs:      pos.EntryTs,
			CurrentPrice: price,
		}
		return 0
	}

	// Reducing or crossing the position. Realize PnL on the closed part.
	closed := math.Min(math.Abs(netQty), math.Abs(pos.Qty))
	direction := 1.0
	if pos.Qty < 0 {
		direction = -1.0
	}
	realized := (price - pos.AvgEntry) * closed * direction

	remaining := pos.Qty + netQty
	switch {
	case math.Abs(remaining) <= epsilon:
		delete(l.positions, symbol)
	case remaining*pos.Qty > 0: // partial reduction keeps the entry basis
		l.positions[symbol] = Position{
			Symbol:       symbol,
			Qty:          remaining,
			AvgEntry:     pos.AvgEntry,
			EntryTs:      pos.EntryTs,
			CurrentPrice: price,
		}
	default: // crossed through zero; remainder opens at the fill price
		l.positions[symbol] = Position{
			Symbol:       symbol,
			Qty:          remaining,
			AvgEntry:     price,
			EntryTs:      ts,
			CurrentPrice: price,
		}
	}
	return realized
}

// MarkToMarket refreshes current price and unrealized PnL for all held
// positions. Pure revaluation; cash is untouched.
func (l *Ledger) MarkToMarket(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(prices)
}

func (l *Ledger) markLocked(prices map[string]float64) {
	for symbol, pos := range l.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		pos.CurrentPrice = price
		pos.Unrealized = (price - pos.AvgEntry) * pos.Qty
		l.positions[symbol] = pos
	}
}

// Value returns cash plus the signed mark value of all positions.
func (l *Ledger) Value(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(prices)
	return l.valueLocked()
}

func (l *Ledger) valueLocked() float64 {
	total := l.cash
	for _, pos := range l.positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalReturn reports the fractional gain or loss since inception.
func (l *Ledger) TotalReturn(prices map[string]float64) float64 {
	return (l.Value(prices) - l.initialCapital) / l.initialCapital
}

// Drawdown returns the non-positive decline from the running peak, updating
// the peak as a side effect.
func (l *Ledger) Drawdown(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(prices)
	return l.drawdownLocked()
}

func (l *Ledger) drawdownLocked() float64 {
	current := l.valueLocked()
	if current > l.peak {
		l.peak = current
	}
	if l.peak <= 0 {
		return 0
	}
	dd := (current - l.peak) / l.peak
	if dd < l.maxDrawdown {
		l.maxDrawdown = dd
	}
	return dd
}

// TakeSnapshot appends the current state to history. Call exactly once per
// simulated bar.
func (l *Ledger) TakeSnapshot(ts time.Time) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.valueLocked()
	unrealized := 0.0
	for _, pos := range l.positions {
		unrealized += pos.Unrealized
	}
	snap := Snapshot{
		Ts:             ts,
		Cash:           l.cash,
		PositionsValue: total - l.cash,
		TotalValue:     total,
		Unrealized:     unrealized,
		TotalReturn:    (total - l.initialCapital) / l.initialCapital,
		Drawdown:       l.drawdownLocked(),
		NumPositions:   len(l.positions),
	}
	l.history = append(l.history, snap)
	return snap
}

// Position returns the holding for a symbol; ok is false when flat.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Positions returns a copy of all holdings.
func (l *Ledger) Positions() map[string]Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Position, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// Trades returns a copy of the append-only trade log.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// History returns a copy of the snapshot history.
func (l *Ledger) History() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Snapshot, len(l.history))
	copy(out, l.history)
	return out
}

// ValueHistory extracts total values from the snapshot history, most recent
// last. Used by the risk manager's limit checks.
func (l *Ledger) ValueHistory() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.history))
	for i, s := range l.history {
		out[i] = s.TotalValue
	}
	return out
}

// RealizedPnL returns total closed-trade profit and loss.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Clone deep-copies the ledger for named save states.
func (l *Ledger) Clone() *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()

	dup := &Ledger{
		initialCapital:  l.initialCapital,
		cash:            l.cash,
		positions:       make(map[string]Position, len(l.positions)),
		trades:          make([]Trade, len(l.trades)),
		history:         make([]Snapshot, len(l.history)),
		peak:            l.peak,
		maxDrawdown:     l.maxDrawdown,
		totalCommission: l.totalCommission,
		totalSlippage:   l.totalSlippage,
		realized:        l.realized,
	}
	for k, v := range l.positions {
		dup.positions[k] = v
	}
	copy(dup.trades, l.trades)
	copy(dup.history, l.history)
	return dup
}

// Reset restores the ledger to its initial funded state.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = l.initialCapital
	l.positions = make(map[string]Position)
	l.trades = nil
	l.history = nil
	l.peak = l.initialCapital
	l.maxDrawdown = 0
	l.totalCommission = 0
	l.totalSlippage = 0
	l.realized = 0
}
