package indicators

import "ichimokuBot/internal/domain"

// Ichimoku computes the five Ichimoku lines for every candle and returns a new
// slice of rows with the same length and timestamps as the input.
//
//	tenkan_sen[t]    = midpoint of high/low over TenkanPeriod bars ending at t
//	kijun_sen[t]     = midpoint of high/low over KijunPeriod bars ending at t
//	senkou_span_a[t] = (tenkan_sen + kijun_sen)/2 computed at t-Offset
//	senkou_span_b[t] = midpoint over SenkouBPeriod bars computed at t-Offset
//	chikou_span[t]   = close[t+Offset]
//
// A value whose window or shift leaves the series is None.
func Ichimoku(klines []*domain.Kline, cfg IchimokuConfig) []domain.IchimokuRow {
	n := len(klines)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]domain.Float, n)
	for i, k := range klines {
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = domain.Some(k.Close)
	}

	tenkan := RollingMidpoint(highs, lows, cfg.TenkanPeriod)
	kijun := RollingMidpoint(highs, lows, cfg.KijunPeriod)

	baseMid := make([]domain.Float, n)
	for i := range baseMid {
		baseMid[i] = tenkan[i].Mid(kijun[i])
	}
	spanA := ShiftForward(baseMid, cfg.Offset)
	spanB := ShiftForward(RollingMidpoint(highs, lows, cfg.SenkouBPeriod), cfg.Offset)
	chikou := ShiftBackward(closes, cfg.Offset)

	rows := make([]domain.IchimokuRow, n)
	for i, k := range klines {
		rows[i] = domain.IchimokuRow{
			Kline:       *k,
			TenkanSen:   tenkan[i],
			KijunSen:    kijun[i],
			SenkouSpanA: spanA[i],
			SenkouSpanB: spanB[i],
			ChikouSpan:  chikou[i],
		}
	}
	return rows
}
