package sim

import (
	"time"

	"quantsim/internal/portfolio"
	sig "quantsim/internal/signal"
)

// State is the immutable observer view published after every processed bar.
// Observers never receive references into the live ledger.
type State struct {
	Ts             time.Time
	Price          float64
	PortfolioValue float64
	Cash           float64
	Positions      map[string]portfolio.Position
	TotalReturn    float64
	Drawdown       float64
	TradeStats     portfolio.TradeStats
	Performance    portfolio.PerformanceMetrics
	Status         Status
	Progress       float64 // 0..1 over the bar series
}

// UpdateFunc receives the per-bar state snapshot.
type UpdateFunc func(State)

// TradeFunc receives each executed trade with the signal that caused it.
type TradeFunc func(portfolio.Trade, sig.Signal)

// AlertFunc receives risk and lifecycle alerts.
type AlertFunc func(string)

type eventKind int

const (
	evUpdate eventKind = iota
	evTrade
	evAlert
)

type event struct {
	kind   eventKind
	state  State
	trade  portfolio.Trade
	signal sig.Signal
	msg    string
}

// eventBus decouples the simulation thread from observers: the loop publishes
// into a bounded channel and a dispatcher goroutine runs the callbacks, so a
// slow observer drops events instead of stalling the replay.
type eventBus struct {
	events chan event
	done   chan struct{}
}

const eventBufferSize = 256

func newEventBus(e *Engine) *eventBus {
	bus := &eventBus{
		events: make(chan event, eventBufferSize),
		done:   make(chan struct{}),
	}
	go bus.dispatch(e)
	return bus
}

func (b *eventBus) dispatch(e *Engine) {
	defer close(b.done)
	for ev := range b.events {
		e.mu.Lock()
		updates := append([]UpdateFunc(nil), e.updateFns...)
		trades := append([]TradeFunc(nil), e.tradeFns...)
		alerts := append([]AlertFunc(nil), e.alertFns...)
		e.mu.Unlock()

		switch ev.kind {
		case evUpdate:
			for _, fn := range updates {
				fn(ev.state)
			}
		case evTrade:
			for _, fn := range trades {
				fn(ev.trade, ev.signal)
			}
		case evAlert:
			for _, fn := range alerts {
				fn(ev.msg)
			}
		}
	}
}

// publish enqueues without blocking; a full buffer drops the event.
func (b *eventBus) publish(e *Engine, ev event) {
	select {
	case b.events <- ev:
	default:
		e.log.Warn().Int("kind", int(ev.kind)).Msg("observer queue full, event dropped")
	}
}

func (b *eventBus) close() {
	close(b.events)
	<-b.done
}
