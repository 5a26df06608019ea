package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/strategy/indicators"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// zigzag builds a series that trends up, then down, then up again so that
// tenkan and kijun cross several times.
func zigzag(n int) []*domain.Kline {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	price := 100.0
	for i := 0; i < n; i++ {
		switch {
		case (i/60)%2 == 0:
			price += 0.5
		default:
			price -= 0.5
		}
		klines[i] = &domain.Kline{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     price - 0.2,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
		}
	}
	return klines
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		logger  ports.Logger
		wantErr error
	}{
		{
			name:   "valid config",
			cfg:    Config{Ichimoku: indicators.DefaultIchimokuConfig()},
			logger: &mockLogger{},
		},
		{
			name:    "nil logger",
			cfg:     Config{Ichimoku: indicators.DefaultIchimokuConfig()},
			logger:  nil,
			wantErr: errors.New("logger is required for strategy"),
		},
		{
			name:    "invalid periods",
			cfg:     Config{Ichimoku: indicators.IchimokuConfig{TenkanPeriod: 0, KijunPeriod: 26, SenkouBPeriod: 52, Offset: 26}},
			logger:  &mockLogger{},
			wantErr: ports.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, tt.logger)
			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, ports.ErrInvalidConfiguration) {
					assert.ErrorIs(t, err, ports.ErrInvalidConfiguration)
				} else {
					assert.EqualError(t, err, tt.wantErr.Error())
				}
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg, s.Config())
		})
	}
}

func TestStrategy_Evaluate(t *testing.T) {
	log := &mockLogger{}
	s, err := New(Config{Ichimoku: indicators.DefaultIchimokuConfig()}, log)
	require.NoError(t, err)

	klines := zigzag(400)
	rows := s.Evaluate(context.Background(), klines)

	require.Len(t, rows, len(klines))
	assert.Equal(t, DetectSignals(indicators.Ichimoku(klines, s.Config().Ichimoku)), rows)
	assert.Equal(t, 77, s.WarmupBars())
	assert.Equal(t, 104, s.RequiredDataPoints())
	assert.Contains(t, log.debugMsgs, "Evaluated Ichimoku signals")

	for i, r := range rows {
		assert.Equal(t, klines[i].OpenTime, r.OpenTime)
		assert.False(t, r.BuySignal && r.SellSignal, "bar %d flagged both ways", i)
	}

	// Same input, same output.
	assert.Equal(t, rows, s.Evaluate(context.Background(), klines))
}

func TestStrategy_EvaluateShortSeries(t *testing.T) {
	log := &mockLogger{}
	s, err := New(Config{Ichimoku: indicators.DefaultIchimokuConfig()}, log)
	require.NoError(t, err)

	rows := s.Evaluate(context.Background(), zigzag(50))
	require.Len(t, rows, 50)
	for _, r := range rows {
		assert.False(t, r.Complete())
		assert.False(t, r.BuySignal)
	}
	assert.Contains(t, log.debugMsgs, "Series shorter than Ichimoku warm-up, rows will be incomplete")
}

func TestLastSignal(t *testing.T) {
	at := func(m int) time.Time { return time.Date(2024, 1, 1, 0, m, 0, 0, time.UTC) }
	row := func(m int, buy, sell bool) domain.SignalRow {
		r := domain.SignalRow{BuySignal: buy, SellSignal: sell}
		r.OpenTime = at(m)
		return r
	}

	tests := []struct {
		name   string
		rows   []domain.SignalRow
		want   time.Time
		wantOK bool
	}{
		{name: "empty", rows: nil},
		{name: "no flags", rows: []domain.SignalRow{row(0, false, false), row(5, false, false)}},
		{name: "latest sell", rows: []domain.SignalRow{row(0, true, false), row(5, false, true), row(10, false, false)}, want: at(5), wantOK: true},
		{name: "latest buy", rows: []domain.SignalRow{row(0, false, true), row(5, false, false), row(10, true, false)}, want: at(10), wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LastSignal(tt.rows)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.OpenTime)
			}
		})
	}
}

func TestStrategy_LatestSignal(t *testing.T) {
	s, err := New(Config{Ichimoku: indicators.DefaultIchimokuConfig()}, &mockLogger{})
	require.NoError(t, err)

	klines := zigzag(400)
	want, wantOK := LastSignal(s.Evaluate(context.Background(), klines))
	got, ok := s.LatestSignal(context.Background(), klines)
	assert.Equal(t, wantOK, ok)
	assert.Equal(t, want, got)

	_, ok = s.LatestSignal(context.Background(), zigzag(50))
	assert.False(t, ok)
}
