package ta

import "etf-trader/internal/types"

// Params selects the lookbacks used to build an indicator table.
type Params struct {
	MAShort   int
	MALong    int
	RSIPeriod int
	BreakoutN int
	KDJN      int
	KDJM1     int
	KDJM2     int
	MACDFast  int
	MACDSlow  int
	MACDSig   int
	ATRPeriod int
}

// DefaultParams mirrors the strategy defaults: MA20/60, RSI(2), Donchian 20,
// KDJ 9/3/3, MACD 12/26/9, ATR 14.
func DefaultParams() Params {
	return Params{
		MAShort:   20,
		MALong:    60,
		RSIPeriod: 2,
		BreakoutN: 20,
		KDJN:      9,
		KDJM1:     3,
		KDJM2:     3,
		MACDFast:  12,
		MACDSlow:  26,
		MACDSig:   9,
		ATRPeriod: 14,
	}
}

// Table wraps the calculator output into one IndicatorRow per bar. The
// Donchian channel is shifted one bar so a row's close is compared with the
// N bars before it.
func Table(bars []types.Bar, p Params) []types.IndicatorRow {
	n := len(bars)
	if n == 0 {
		return nil
	}
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i], highs[i], lows[i] = b.Close, b.High, b.Low
	}

	maS := SMASeries(closes, p.MAShort)
	maL := SMASeries(closes, p.MALong)
	rsi := RSISeries(closes, p.RSIPeriod)
	k, d, j := KDJ(highs, lows, closes, p.KDJN, p.KDJM1, p.KDJM2)
	dif, dea, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSig)
	dHigh := Shift(RollingMax(highs, p.BreakoutN), 1)
	dLow := Shift(RollingMin(lows, p.BreakoutN), 1)
	atr := ATRSeries(highs, lows, closes, p.ATRPeriod)

	rows := make([]types.IndicatorRow, n)
	for i, b := range bars {
		rows[i] = types.IndicatorRow{
			Bar:          b,
			MAShort:      maS[i],
			MALong:       maL[i],
			RSI:          rsi[i],
			K:            k[i],
			D:            d[i],
			J:            j[i],
			DIF:          dif[i],
			DEA:          dea[i],
			MACDHist:     hist[i],
			DonchianHigh: dHigh[i],
			DonchianLow:  dLow[i],
			ATR:          atr[i],
		}
	}
	return rows
}

// Closes extracts the close column.
func Closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
