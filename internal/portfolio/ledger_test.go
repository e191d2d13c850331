package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testTs = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLedger(t *testing.T, capital float64) *Ledger {
	t.Helper()
	ledger, err := NewLedger(capital)
	if err != nil {
		t.Fatalf("NewLedger returned error: %v", err)
	}
	return ledger
}

func order(side Side, qty, price, commissionRate float64) Order {
	return Order{
		Ts:             testTs,
		Symbol:         "BTC-USD",
		Side:           side,
		Qty:            qty,
		Price:          price,
		Strategy:       "test",
		CommissionRate: commissionRate,
	}
}

func TestNewLedgerRejectsNonPositiveCapital(t *testing.T) {
	if _, err := NewLedger(0); err == nil {
		t.Fatalf("expected error for zero capital")
	}
	if _, err := NewLedger(-100); err == nil {
		t.Fatalf("expected error for negative capital")
	}
}

func TestBuySellRoundTrip(t *testing.T) {
	ledger := testLedger(t, 10000)

	trade, err := ledger.ExecuteTrade(order(Buy, 0.1, 20000, 0.001))
	if err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	if trade.ID == "" {
		t.Fatalf("trade should carry an id")
	}
	if math.Abs(trade.Commission-2) > 1e-9 {
		t.Fatalf("expected commission 2, got %f", trade.Commission)
	}
	if math.Abs(ledger.Cash()-7998) > 1e-9 {
		t.Fatalf("expected cash 7998 after buy, got %f", ledger.Cash())
	}

	pos, held := ledger.Position("BTC-USD")
	if !held || pos.Qty != 0.1 || pos.AvgEntry != 20000 {
		t.Fatalf("unexpected position after buy: %+v held=%v", pos, held)
	}

	trade, err = ledger.ExecuteTrade(order(Sell, 0.1, 20000, 0.001))
	if err != nil {
		t.Fatalf("sell returned error: %v", err)
	}
	if math.Abs(ledger.Cash()-9996) > 1e-9 {
		t.Fatalf("expected cash 9996 after round trip, got %f", ledger.Cash())
	}
	if trade.Realized != 0 {
		t.Fatalf("flat round trip should realize zero, got %f", trade.Realized)
	}
	if _, held := ledger.Position("BTC-USD"); held {
		t.Fatalf("position should be removed at zero quantity")
	}
}

func TestInsufficientFundsNeverClamps(t *testing.T) {
	ledger := testLedger(t, 1000)

	_, err := ledger.ExecuteTrade(order(Buy, 1, 2000, 0))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if ledger.Cash() != 1000 {
		t.Fatalf("rejected trade must not touch cash, got %f", ledger.Cash())
	}
	if len(ledger.Trades()) != 0 {
		t.Fatalf("rejected trade must not be logged")
	}

	// Fees alone can push an otherwise affordable buy over the line.
	_, err = ledger.ExecuteTrade(order(Buy, 1, 1000, 0.001))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected fee-inclusive rejection, got %v", err)
	}
}

func TestVWAPOnSameDirectionAdds(t *testing.T) {
	ledger := testLedger(t, 10000)

	if _, err := ledger.ExecuteTrade(order(Buy, 1, 100, 0)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := ledger.ExecuteTrade(order(Buy, 1, 200, 0)); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := ledger.Position("BTC-USD")
	if pos.Qty != 2 || pos.AvgEntry != 150 {
		t.Fatalf("expected qty 2 avg 150, got %+v", pos)
	}
}

func TestReductionKeepsBasisAndRealizes(t *testing.T) {
	ledger := testLedger(t, 10000)

	if _, err := ledger.ExecuteTrade(order(Buy, 2, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	trade, err := ledger.ExecuteTrade(order(Sell, 1, 150, 0))
	if err != nil {
		t.Fatalf("partial sell: %v", err)
	}
	if math.Abs(trade.Realized-50) > 1e-9 {
		t.Fatalf("expected realized 50, got %f", trade.Realized)
	}

	pos, _ := ledger.Position("BTC-USD")
	if pos.Qty != 1 || pos.AvgEntry != 100 {
		t.Fatalf("reduction must keep the entry basis, got %+v", pos)
	}
	if math.Abs(ledger.RealizedPnL()-50) > 1e-9 {
		t.Fatalf("expected cumulative realized 50, got %f", ledger.RealizedPnL())
	}
}

func TestCashConservation(t *testing.T) {
	ledger := testLedger(t, 10000)
	prices := map[string]float64{"BTC-USD": 100}

	if _, err := ledger.ExecuteTrade(order(Buy, 20, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// Without fees, total value is unchanged by trading.
	if got := ledger.Value(prices); math.Abs(got-10000) > 1e-9 {
		t.Fatalf("fee-free trade must conserve value, got %f", got)
	}

	// With fees, the shortfall equals the fees paid.
	if _, err := ledger.ExecuteTrade(order(Sell, 20, 100, 0.001)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if got := ledger.Value(prices); math.Abs(got-(10000-2)) > 1e-9 {
		t.Fatalf("value should drop by exactly the fee, got %f", got)
	}
}

func TestMarkToMarketAndDrawdown(t *testing.T) {
	ledger := testLedger(t, 10000)
	if _, err := ledger.ExecuteTrade(order(Buy, 10, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	up := map[string]float64{"BTC-USD": 120}
	ledger.MarkToMarket(up)
	pos, _ := ledger.Position("BTC-USD")
	if math.Abs(pos.Unrealized-200) > 1e-9 {
		t.Fatalf("expected unrealized 200, got %f", pos.Unrealized)
	}
	if dd := ledger.Drawdown(up); dd != 0 {
		t.Fatalf("new peak should mean zero drawdown, got %f", dd)
	}

	down := map[string]float64{"BTC-USD": 90}
	dd := ledger.Drawdown(down)
	// Peak was 10200; value is now 9000 cash + 900 position.
	want := (9900.0 - 10200.0) / 10200.0
	if math.Abs(dd-want) > 1e-9 {
		t.Fatalf("expected drawdown %f, got %f", want, dd)
	}
}

func TestTakeSnapshotHistory(t *testing.T) {
	ledger := testLedger(t, 10000)
	if _, err := ledger.ExecuteTrade(order(Buy, 10, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	ledger.MarkToMarket(map[string]float64{"BTC-USD": 110})

	snap := ledger.TakeSnapshot(testTs)
	if snap.NumPositions != 1 {
		t.Fatalf("expected one open position, got %d", snap.NumPositions)
	}
	if math.Abs(snap.TotalValue-(snap.Cash+snap.PositionsValue)) > 1e-9 {
		t.Fatalf("snapshot must decompose into cash plus positions: %+v", snap)
	}
	if math.Abs(snap.TotalValue-10100) > 1e-9 {
		t.Fatalf("expected total 10100, got %f", snap.TotalValue)
	}
	if len(ledger.History()) != 1 {
		t.Fatalf("expected one snapshot in history")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ledger := testLedger(t, 10000)
	if _, err := ledger.ExecuteTrade(order(Buy, 1, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	clone := ledger.Clone()
	if _, err := ledger.ExecuteTrade(order(Buy, 1, 200, 0)); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	if len(clone.Trades()) != 1 {
		t.Fatalf("clone should keep its own trade log, got %d", len(clone.Trades()))
	}
	pos, _ := clone.Position("BTC-USD")
	if pos.Qty != 1 || pos.AvgEntry != 100 {
		t.Fatalf("clone position mutated: %+v", pos)
	}
}

func TestReset(t *testing.T) {
	ledger := testLedger(t, 10000)
	if _, err := ledger.ExecuteTrade(order(Buy, 1, 100, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	ledger.TakeSnapshot(testTs)

	ledger.Reset()
	if ledger.Cash() != 10000 {
		t.Fatalf("reset should restore cash, got %f", ledger.Cash())
	}
	if len(ledger.Trades()) != 0 || len(ledger.History()) != 0 {
		t.Fatalf("reset should clear trade log and history")
	}
	if len(ledger.Positions()) != 0 {
		t.Fatalf("reset should clear positions")
	}
}
