package risk

import (
	"strings"
	"testing"
)

func TestCheckAllowsWithinLimits(t *testing.T) {
	m := NewManager(DefaultLimits())
	verdict := m.Check(1, []float64{10000, 10100, 10050})
	if !verdict.Allowed {
		t.Fatalf("expected pass, got veto: %s", verdict.Reason)
	}
	if verdict.Breach != BreachNone {
		t.Fatalf("expected no breach, got %s", verdict.Breach)
	}
}

func TestCheckMaxPositions(t *testing.T) {
	m := NewManager(Limits{MaxPositions: 3})
	verdict := m.Check(3, []float64{10000})
	if verdict.Allowed || verdict.Breach != BreachMaxPositions {
		t.Fatalf("expected max positions veto, got %+v", verdict)
	}
}

func TestCheckDrawdownLimit(t *testing.T) {
	m := NewManager(Limits{MaxDrawdown: 0.25})
	// 26% off the peak breaches a 25% limit.
	verdict := m.Check(0, []float64{10000, 7400})
	if verdict.Allowed || verdict.Breach != BreachDrawdown {
		t.Fatalf("expected drawdown veto, got %+v", verdict)
	}
	if !strings.Contains(verdict.Reason, "drawdown") {
		t.Fatalf("reason should mention drawdown: %s", verdict.Reason)
	}

	// 24% off the peak, reached gradually, is inside the limit.
	verdict = m.Check(0, []float64{10000, 7700, 7600})
	if !verdict.Allowed {
		t.Fatalf("24%% drawdown should pass, got %s", verdict.Reason)
	}
}

func TestCheckDailyLossLimit(t *testing.T) {
	m := NewManager(Limits{DailyLossLimit: 0.05})
	// 6% bar-over-bar loss breaches a 5% limit without touching drawdown.
	verdict := m.Check(0, []float64{10000, 9400})
	if verdict.Allowed || verdict.Breach != BreachDailyLoss {
		t.Fatalf("expected daily loss veto, got %+v", verdict)
	}
}

func TestEmergencyStop(t *testing.T) {
	m := NewManager(Limits{EmergencyStopDD: 0.25})

	if m.Update(10000) {
		t.Fatalf("peak update should not trip the stop")
	}
	if !m.Update(7000) {
		t.Fatalf("30%% drawdown should trip the stop")
	}
	if m.Update(6000) {
		t.Fatalf("stop should only report tripping once")
	}
	if !m.EmergencyStopped() {
		t.Fatalf("stop flag should be set")
	}

	verdict := m.Check(0, []float64{10000, 7000})
	if verdict.Allowed || verdict.Breach != BreachEmergencyStop {
		t.Fatalf("expected emergency stop veto, got %+v", verdict)
	}

	m.ClearEmergencyStop()
	if m.EmergencyStopped() {
		t.Fatalf("flag should clear")
	}
	verdict = m.Check(0, []float64{10000, 10000})
	if !verdict.Allowed {
		t.Fatalf("cleared stop should allow trading, got %s", verdict.Reason)
	}
}

func TestNewManagerZeroFallbacks(t *testing.T) {
	m := NewManager(Limits{})
	if m.limits != DefaultLimits() {
		t.Fatalf("zero limits should fall back to defaults, got %+v", m.limits)
	}
}
