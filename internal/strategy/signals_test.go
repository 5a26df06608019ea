package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichimokuBot/internal/domain"
)

// neutralRows builds n complete rows with tenkan below kijun, close inside a
// cloud at [90, 110], and chikou at 100 against highs of 105 and lows of 95.
func neutralRows(n int) []domain.IchimokuRow {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.IchimokuRow, n)
	for i := range rows {
		rows[i] = domain.IchimokuRow{
			Kline: domain.Kline{
				OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
				Open:     100, High: 105, Low: 95, Close: 100,
			},
			TenkanSen:   domain.Some(99),
			KijunSen:    domain.Some(100),
			SenkouSpanA: domain.Some(90),
			SenkouSpanB: domain.Some(110),
			ChikouSpan:  domain.Some(100),
		}
	}
	return rows
}

// bullish turns row t into a bar that satisfies every buy condition.
func bullish(rows []domain.IchimokuRow, t int) {
	rows[t].TenkanSen = domain.Some(101)
	rows[t].Close = 120
	rows[t].High = 121
	rows[t].ChikouSpan = domain.Some(130)
}

// bearish turns row t into a bar that satisfies every sell condition, assuming
// tenkan was above kijun on the previous bar.
func bearish(rows []domain.IchimokuRow, t int) {
	rows[t].TenkanSen = domain.Some(98)
	rows[t].Close = 80
	rows[t].Low = 79
	rows[t].ChikouSpan = domain.Some(70)
}

func TestDetectSignals_Buy(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(rows []domain.IchimokuRow)
		barIdx  int
		wantBuy bool
	}{
		{
			name:    "all conditions met",
			mutate:  func(rows []domain.IchimokuRow) { bullish(rows, 30) },
			barIdx:  30,
			wantBuy: true,
		},
		{
			name: "no cross because tenkan was already above",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.Some(101)
				bullish(rows, 30)
			},
			barIdx: 30,
		},
		{
			name: "close inside the cloud",
			mutate: func(rows []domain.IchimokuRow) {
				bullish(rows, 30)
				rows[30].Close = 105
			},
			barIdx: 30,
		},
		{
			name: "cloud undefined when one span is missing",
			mutate: func(rows []domain.IchimokuRow) {
				bullish(rows, 30)
				rows[30].SenkouSpanB = domain.None()
			},
			barIdx: 30,
		},
		{
			name: "chikou not above high 26 bars back",
			mutate: func(rows []domain.IchimokuRow) {
				bullish(rows, 30)
				rows[4].High = 140
			},
			barIdx: 30,
		},
		{
			name: "chikou undefined",
			mutate: func(rows []domain.IchimokuRow) {
				bullish(rows, 30)
				rows[30].ChikouSpan = domain.None()
			},
			barIdx: 30,
		},
		{
			name:   "fewer than 26 earlier bars",
			mutate: func(rows []domain.IchimokuRow) { bullish(rows, 25) },
			barIdx: 25,
		},
		{
			name:    "first bar with a full reference window",
			mutate:  func(rows []domain.IchimokuRow) { bullish(rows, 26) },
			barIdx:  26,
			wantBuy: true,
		},
		{
			// Questionable but intentional: an undefined previous crossing
			// state counts as "was not above", so the next defined bar crosses.
			name: "missing previous tenkan counts as not above",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.None()
				rows[29].KijunSen = domain.None()
				bullish(rows, 30)
			},
			barIdx:  30,
			wantBuy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := neutralRows(40)
			tt.mutate(rows)

			got := DetectSignals(rows)
			require.Len(t, got, len(rows))
			assert.Equal(t, tt.wantBuy, got[tt.barIdx].BuySignal)
			assert.False(t, got[tt.barIdx].SellSignal)

			buys, _ := CountSignals(got)
			if tt.wantBuy {
				assert.Equal(t, 1, buys)
			} else {
				assert.Zero(t, buys)
			}
		})
	}
}

func TestDetectSignals_Sell(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(rows []domain.IchimokuRow)
		wantSell bool
	}{
		{
			name: "all conditions met",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.Some(101)
				bearish(rows, 30)
			},
			wantSell: true,
		},
		{
			name:   "no cross down when tenkan was already below",
			mutate: func(rows []domain.IchimokuRow) { bearish(rows, 30) },
		},
		{
			name: "missing previous tenkan never produces a cross down",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.None()
				bearish(rows, 30)
			},
		},
		{
			name: "chikou not below low 26 bars back",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.Some(101)
				bearish(rows, 30)
				rows[4].Low = 60
			},
		},
		{
			name: "close not below the cloud",
			mutate: func(rows []domain.IchimokuRow) {
				rows[29].TenkanSen = domain.Some(101)
				bearish(rows, 30)
				rows[30].Close = 95
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := neutralRows(40)
			tt.mutate(rows)

			got := DetectSignals(rows)
			assert.Equal(t, tt.wantSell, got[30].SellSignal)
			assert.False(t, got[30].BuySignal)
		})
	}
}

// The chikou reference stays 26 bars back whatever offset produced the spans.
// This mirrors the reference behavior and is kept on purpose, though it looks
// like it was meant to follow the offset.
func TestDetectSignals_ChikouReferenceIsFixed(t *testing.T) {
	rows := neutralRows(40)
	bullish(rows, 30)
	rows[20].High = 500 // 10 bars back, would block a buy if the lag followed a 10-bar offset

	got := DetectSignals(rows)
	assert.True(t, got[30].BuySignal)
	assert.Equal(t, 26, ChikouReferenceLag)
}

func TestDetectSignals_DoesNotMutateInput(t *testing.T) {
	rows := neutralRows(40)
	bullish(rows, 30)
	snapshot := make([]domain.IchimokuRow, len(rows))
	copy(snapshot, rows)

	_ = DetectSignals(rows)
	assert.Equal(t, snapshot, rows)
}

func TestDetectSignals_Empty(t *testing.T) {
	assert.Empty(t, DetectSignals(nil))
}
