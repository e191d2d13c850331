package portfolio

import "math"

// TradeStats aggregates counts and averages over the trade log. Realized PnL
// on reducing fills drives the win/loss figures; no historical snapshot is
// recomputed here.
type TradeStats struct {
	TotalTrades     int
	BuyTrades       int
	SellTrades      int
	RoundTrips      int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	AvgWin          float64
	AvgLoss         float64
	ProfitFactor    float64
	AvgConfidence   float64
	TotalCommission float64
	TotalSlippage   float64
}

// TradeStats computes aggregate statistics over the trade log.
func (l *Ledger) TradeStats() TradeStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := TradeStats{
		TotalTrades:     len(l.trades),
		TotalCommission: l.totalCommission,
		TotalSlippage:   l.totalSlippage,
	}
	if len(l.trades) == 0 {
		return stats
	}

	var confidenceSum, winSum, lossSum float64
	for _, t := range l.trades {
		confidenceSum += t.Confidence
		switch t.Side {
		case Buy:
			stats.BuyTrades++
		case Sell:
			stats.SellTrades++
		}
		if t.Side != Sell {
			continue
		}
		stats.RoundTrips++
		if t.Realized > 0 {
			stats.WinningTrades++
			winSum += t.Realized
		} else if t.Realized < 0 {
			stats.LosingTrades++
			lossSum += t.Realized
		}
	}
	stats.AvgConfidence = confidenceSum / float64(len(l.trades))
	if stats.RoundTrips > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.RoundTrips)
	}
	if stats.WinningTrades > 0 {
		stats.AvgWin = winSum / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = lossSum / float64(stats.LosingTrades)
	}
	if lossSum != 0 {
		stats.ProfitFactor = math.Abs(winSum / lossSum)
	} else if winSum > 0 {
		stats.ProfitFactor = math.Inf(1)
	}
	return stats
}

// PerformanceMetrics summarizes the snapshot history.
type PerformanceMetrics struct {
	TotalReturn     float64
	Sharpe          float64
	MaxDrawdown     float64
	CurrentDrawdown float64
	Calmar          float64
	CurrentValue    float64
	PeakValue       float64
}

const snapshotsPerYear = 252.0

// PerformanceMetrics computes risk-adjusted figures from the snapshot
// history. Requires at least two snapshots; earlier calls return zeros.
func (l *Ledger) PerformanceMetrics() PerformanceMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.history) < 2 {
		return PerformanceMetrics{}
	}
	current := l.history[len(l.history)-1]

	returns := make([]float64, 0, len(l.history)-1)
	for i := 1; i < len(l.history); i++ {
		prev := l.history[i-1].TotalValue
		if prev > 0 {
			returns = append(returns, l.history[i].TotalValue/prev-1)
		}
	}

	m := PerformanceMetrics{
		TotalReturn:     current.TotalReturn,
		MaxDrawdown:     l.maxDrawdown,
		CurrentDrawdown: current.Drawdown,
		CurrentValue:    current.TotalValue,
		PeakValue:       l.peak,
	}
	if sd := sampleStd(returns); sd > 0 {
		m.Sharpe = meanOf(returns) / sd * math.Sqrt(snapshotsPerYear)
	}
	if l.maxDrawdown < 0 {
		m.Calmar = current.TotalReturn / math.Abs(l.maxDrawdown)
	}
	return m
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := meanOf(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
