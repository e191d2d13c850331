package risk

import (
	"fmt"
	"sync"
)

// Limits encodes guard-rails checked before every trade attempt.
type Limits struct {
	MaxPositions    int     `yaml:"max_positions"`
	MaxDrawdown     float64 `yaml:"max_drawdown_limit"`
	DailyLossLimit  float64 `yaml:"daily_loss_limit"`
	EmergencyStopDD float64 `yaml:"emergency_stop_drawdown"`
}

// DefaultLimits returns the stock guard-rail settings.
func DefaultLimits() Limits {
	return Limits{
		MaxPositions:    3,
		MaxDrawdown:     0.25,
		DailyLossLimit:  0.05,
		EmergencyStopDD: 0.25,
	}
}

// Verdict carries the outcome of a limit check together with the limit that
// fired, so the engine can pick the right response (stop vs pause).
type Verdict struct {
	Allowed bool
	Reason  string
	Breach  Breach
}

// Breach identifies which limit vetoed a trade.
type Breach string

const (
	BreachNone          Breach = ""
	BreachEmergencyStop Breach = "emergency_stop"
	BreachMaxPositions  Breach = "max_positions"
	BreachDrawdown      Breach = "max_drawdown"
	BreachDailyLoss     Breach = "daily_loss"
)

// Manager runs the advisory-and-blocking limit checks and owns the emergency
// stop flag. It sees only value history and position counts, never the ledger
// itself.
type Manager struct {
	mu            sync.Mutex
	limits        Limits
	peak          float64
	emergencyStop bool
}

// NewManager builds a manager; zero-valued limit fields fall back to
// defaults.
func NewManager(limits Limits) *Manager {
	def := DefaultLimits()
	if limits.MaxPositions == 0 {
		limits.MaxPositions = def.MaxPositions
	}
	if limits.MaxDrawdown == 0 {
		limits.MaxDrawdown = def.MaxDrawdown
	}
	if limits.DailyLossLimit == 0 {
		limits.DailyLossLimit = def.DailyLossLimit
	}
	if limits.EmergencyStopDD == 0 {
		limits.EmergencyStopDD = def.EmergencyStopDD
	}
	return &Manager{limits: limits}
}

// Check decides whether a new trade may proceed given the current open
// position count and the portfolio value history (most recent last). It vetoes
// on the emergency stop, the concurrent position cap, the drawdown limit, and
// the previous-bar loss limit, in that order.
func (m *Manager) Check(openPositions int, valueHistory []float64) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.emergencyStop {
		return Verdict{Allowed: false, Reason: "emergency stop activated", Breach: BreachEmergencyStop}
	}
	if openPositions >= m.limits.MaxPositions {
		return Verdict{
			Allowed: false,
			Reason:  fmt.Sprintf("maximum positions limit reached (%d)", m.limits.MaxPositions),
			Breach:  BreachMaxPositions,
		}
	}
	if len(valueHistory) > 1 {
		current := valueHistory[len(valueHistory)-1]
		peak := current
		for _, v := range valueHistory {
			if v > peak {
				peak = v
			}
		}
		if peak > 0 {
			if dd := (peak - current) / peak; dd > m.limits.MaxDrawdown {
				return Verdict{
					Allowed: false,
					Reason:  fmt.Sprintf("maximum drawdown exceeded: %.2f%% > %.2f%%", dd*100, m.limits.MaxDrawdown*100),
					Breach:  BreachDrawdown,
				}
			}
		}

		// Previous-bar loss check, not a true 24h window.
		previous := valueHistory[len(valueHistory)-2]
		if previous > 0 {
			if loss := (current - previous) / previous; loss < -m.limits.DailyLossLimit {
				return Verdict{
					Allowed: false,
					Reason:  fmt.Sprintf("daily loss limit exceeded: %.2f%%", loss*100),
					Breach:  BreachDailyLoss,
				}
			}
		}
	}
	return Verdict{Allowed: true, Reason: "risk checks passed"}
}

// Update feeds the latest portfolio value into the running peak and arms the
// emergency stop once realized drawdown crosses the hard threshold. Returns
// true the moment the stop trips.
func (m *Manager) Update(totalValue float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if totalValue > m.peak {
		m.peak = totalValue
	}
	if m.emergencyStop || m.peak <= 0 {
		return false
	}
	if dd := (m.peak - totalValue) / m.peak; dd > m.limits.EmergencyStopDD {
		m.emergencyStop = true
		return true
	}
	return false
}

// EmergencyStopped reports the flag state.
func (m *Manager) EmergencyStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergencyStop
}

// ClearEmergencyStop manually re-arms trading after a hard stop.
func (m *Manager) ClearEmergencyStop() {
	m.mu.Lock()
	m.emergencyStop = false
	m.mu.Unlock()
}
