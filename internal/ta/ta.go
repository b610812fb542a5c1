package ta

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Scalar helpers return the value at the last element of the series, or NaN
// when there is not enough data.

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	m, err := stats.Mean(closes[len(closes)-n:])
	if err != nil {
		return math.NaN()
	}
	return m
}

func RSI(closes []float64, period int) float64 {
	s := RSISeries(closes, period)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sd, err := stats.StandardDeviationPopulation(vals[len(vals)-n:])
	if err != nil {
		return math.NaN()
	}
	return sd
}

// Returns converts a price series into simple period returns (one shorter).
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

func ATR(highs, lows, closes []float64, period int) float64 {
	s := ATRSeries(highs, lows, closes, period)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries is the rolling mean over n values.
func SMASeries(vals []float64, n int) []float64 {
	out := nanSeries(len(vals))
	if n <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= n {
			sum -= vals[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMASeries is an exponential moving average with alpha = 2/(span+1),
// seeded with the first value.
func EMASeries(vals []float64, span int) []float64 {
	out := nanSeries(len(vals))
	if span <= 0 || len(vals) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries uses simple rolling means of gains and losses over period.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 {
		return out
	}
	for i := period; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - closes[j-1]
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		switch {
		case loss == 0 && gain == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		default:
			rs := gain / loss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

func RollingMax(vals []float64, n int) []float64 {
	return rolling(vals, n, math.Max)
}

func RollingMin(vals []float64, n int) []float64 {
	return rolling(vals, n, math.Min)
}

func rolling(vals []float64, n int, pick func(a, b float64) float64) []float64 {
	out := nanSeries(len(vals))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(vals); i++ {
		m := vals[i-n+1]
		for j := i - n + 2; j <= i; j++ {
			m = pick(m, vals[j])
		}
		out[i] = m
	}
	return out
}

// Shift moves a series k places later, padding the head with NaN.
func Shift(vals []float64, k int) []float64 {
	out := nanSeries(len(vals))
	for i := k; i < len(vals); i++ {
		out[i] = vals[i-k]
	}
	return out
}

// KDJ computes the stochastic K/D/J lines. RSV is taken over n bars, then K
// and D are smoothed recursively (weights 1/m1 and 1/m2) starting at 50.
func KDJ(highs, lows, closes []float64, n, m1, m2 int) (k, d, j []float64) {
	k, d, j = nanSeries(len(closes)), nanSeries(len(closes)), nanSeries(len(closes))
	if n <= 0 || m1 <= 0 || m2 <= 0 || len(highs) != len(closes) || len(lows) != len(closes) {
		return
	}
	hh := RollingMax(highs, n)
	ll := RollingMin(lows, n)
	prevK, prevD := 50.0, 50.0
	for i := n - 1; i < len(closes); i++ {
		rsv := 50.0
		if rng := hh[i] - ll[i]; rng > 0 {
			rsv = (closes[i] - ll[i]) / rng * 100
		}
		k[i] = (float64(m1-1)*prevK + rsv) / float64(m1)
		d[i] = (float64(m2-1)*prevD + k[i]) / float64(m2)
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return
}

// MACD returns DIF = EMA(fast) - EMA(slow), DEA = EMA(DIF, signal) and the
// histogram 2*(DIF-DEA). Values before the slow window fills are NaN.
func MACD(closes []float64, fast, slow, signal int) (dif, dea, hist []float64) {
	dif, dea, hist = nanSeries(len(closes)), nanSeries(len(closes)), nanSeries(len(closes))
	if len(closes) < slow || fast <= 0 || slow <= fast || signal <= 0 {
		return
	}
	ef := EMASeries(closes, fast)
	es := EMASeries(closes, slow)
	raw := make([]float64, len(closes))
	for i := range closes {
		raw[i] = ef[i] - es[i]
	}
	sig := EMASeries(raw, signal)
	for i := slow - 1; i < len(closes); i++ {
		dif[i] = raw[i]
		dea[i] = sig[i]
		hist[i] = 2 * (raw[i] - sig[i])
	}
	return
}

// ATRSeries is the rolling mean true range over period.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(highs) != len(closes) || len(lows) != len(closes) {
		return out
	}
	tr := nanSeries(len(closes))
	for i := 1; i < len(closes); i++ {
		tr[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	for i := period; i < len(closes); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}
