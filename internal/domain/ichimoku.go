package domain

// IchimokuRow is a candle together with the five Ichimoku lines computed for it.
type IchimokuRow struct {
	Kline
	TenkanSen   Float
	KijunSen    Float
	SenkouSpanA Float
	SenkouSpanB Float
	ChikouSpan  Float
}

// Complete reports whether every indicator line is defined for this bar.
func (r IchimokuRow) Complete() bool {
	return r.TenkanSen.Valid && r.KijunSen.Valid &&
		r.SenkouSpanA.Valid && r.SenkouSpanB.Valid && r.ChikouSpan.Valid
}

// SignalRow is an IchimokuRow plus the buy/sell decision for the bar.
type SignalRow struct {
	IchimokuRow
	BuySignal  bool
	SellSignal bool
}
