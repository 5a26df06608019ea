package strategy

import "ichimokuBot/internal/domain"

// ChikouReferenceLag is how many bars back the chikou span is compared against
// the high (buy) or low (sell). It is a fixed 26 and does not follow the
// configured Ichimoku offset.
const ChikouReferenceLag = 26

// DetectSignals returns a new slice with buy/sell flags for every row.
//
// A buy requires, on the same bar: tenkan crossing above kijun, close above the
// cloud, and chikou above the high ChikouReferenceLag bars earlier. A sell is
// the mirror image. Any undefined operand makes the condition false, and a bar
// with no previous bar counts as "tenkan was not above kijun".
func DetectSignals(rows []domain.IchimokuRow) []domain.SignalRow {
	out := make([]domain.SignalRow, len(rows))
	prevAbove := false

	for t, r := range rows {
		above := r.TenkanSen.GreaterThan(r.KijunSen)
		crossUp := above && !prevAbove
		crossDown := !above && prevAbove
		prevAbove = above

		kumoUpper := r.SenkouSpanA.Max(r.SenkouSpanB)
		kumoLower := r.SenkouSpanA.Min(r.SenkouSpanB)

		refHigh, refLow := domain.None(), domain.None()
		if t >= ChikouReferenceLag {
			refHigh = domain.Some(rows[t-ChikouReferenceLag].High)
			refLow = domain.Some(rows[t-ChikouReferenceLag].Low)
		}
		closePrice := domain.Some(r.Close)

		out[t] = domain.SignalRow{
			IchimokuRow: r,
			BuySignal:   crossUp && closePrice.GreaterThan(kumoUpper) && r.ChikouSpan.GreaterThan(refHigh),
			SellSignal:  crossDown && closePrice.LessThan(kumoLower) && r.ChikouSpan.LessThan(refLow),
		}
	}
	return out
}

// CountSignals returns the number of buy and sell flags in rows.
func CountSignals(rows []domain.SignalRow) (buys, sells int) {
	for _, r := range rows {
		if r.BuySignal {
			buys++
		}
		if r.SellSignal {
			sells++
		}
	}
	return buys, sells
}

// LastSignal returns the most recent row that carries a buy or sell flag.
func LastSignal(rows []domain.SignalRow) (domain.SignalRow, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].BuySignal || rows[i].SellSignal {
			return rows[i], true
		}
	}
	return domain.SignalRow{}, false
}
