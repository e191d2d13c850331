package strategy

import "math"

// SMA returns the simple moving average of the trailing window, or NaN when
// the sample is shorter than the period.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average over the full sample using
// span-style smoothing (alpha = 2/(period+1)). NaN when the sample is shorter
// than the period.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// WilderRSI computes the Relative Strength Index with Wilder smoothing. The
// sample must contain at least period+1 prices; otherwise NaN.
func WilderRSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return math.NaN()
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// PctChange returns the relative change between the latest value and the
// value lookback steps earlier, or NaN when out of range.
func PctChange(values []float64, lookback int) float64 {
	if lookback <= 0 || len(values) <= lookback {
		return math.NaN()
	}
	anchor := values[len(values)-1-lookback]
	if anchor == 0 {
		return math.NaN()
	}
	return values[len(values)-1]/anchor - 1
}

// StdDev returns the sample standard deviation of the trailing window, or NaN
// when fewer than two samples are available.
func StdDev(values []float64, period int) float64 {
	if period > len(values) {
		period = len(values)
	}
	if period < 2 {
		return math.NaN()
	}
	window := values[len(values)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))
	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window) - 1)
	return math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
