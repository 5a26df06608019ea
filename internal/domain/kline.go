package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  time.Time // Start time of the interval, unique within a series
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Kline interval (e.g., "1m", "5m")
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool // Whether the interval has closed
}

// ClosedBy reports whether the candle's interval has ended at the given time.
func (k *Kline) ClosedBy(now time.Time) bool {
	return now.After(k.CloseTime)
}
