// Package marketdata holds pure transforms over kline series: ordering,
// de-duplication and aggregation into coarser intervals.
package marketdata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
)

// Normalize returns a new series sorted by OpenTime with one kline per
// OpenTime. When a timestamp repeats, the later kline in the input wins.
// Klines with a non-finite price are dropped.
func Normalize(klines []*domain.Kline) []*domain.Kline {
	latest := make(map[int64]*domain.Kline, len(klines))
	for _, k := range klines {
		if k == nil || !finite(k.Open, k.High, k.Low, k.Close) {
			continue
		}
		latest[k.OpenTime.UnixMilli()] = k
	}

	out := make([]*domain.Kline, 0, len(latest))
	for _, k := range latest {
		c := *k
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

// Resample aggregates a normalized series into buckets of width d, each
// labelled with its floored start time. Open is the first open, High the max,
// Low the min, Close the last close and Volume the sum. Buckets with no input
// bars do not appear in the output.
func Resample(klines []*domain.Kline, d time.Duration, label string) ([]*domain.Kline, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: resample interval must be positive (%v)", ports.ErrInvalidConfiguration, d)
	}

	var out []*domain.Kline
	var cur *domain.Kline
	for _, k := range klines {
		bucket := FloorTime(k.OpenTime, d)
		if cur == nil || !cur.OpenTime.Equal(bucket) {
			if cur != nil && bucket.Before(cur.OpenTime) {
				return nil, fmt.Errorf("%w: series not sorted at %s", ports.ErrInvalidRequest, k.OpenTime.Format(time.RFC3339))
			}
			cur = &domain.Kline{
				OpenTime:  bucket,
				CloseTime: bucket.Add(d - time.Millisecond),
				Symbol:    k.Symbol,
				Interval:  label,
				Open:      k.Open,
				High:      k.High,
				Low:       k.Low,
			}
			out = append(out, cur)
		}
		cur.High = math.Max(cur.High, k.High)
		cur.Low = math.Min(cur.Low, k.Low)
		cur.Close = k.Close
		cur.Volume += k.Volume
		cur.IsFinal = k.IsFinal
	}
	return out, nil
}

// DropOpen removes trailing klines whose interval has not ended at now.
func DropOpen(klines []*domain.Kline, now time.Time) []*domain.Kline {
	n := len(klines)
	for n > 0 && !klines[n-1].ClosedBy(now) {
		n--
	}
	return klines[:n]
}

// FloorTime truncates t to a multiple of d since the Unix epoch, in UTC.
func FloorTime(t time.Time, d time.Duration) time.Time {
	return t.UTC().Truncate(d)
}

// NextBoundary returns the first multiple of d strictly after t.
func NextBoundary(t time.Time, d time.Duration) time.Time {
	return FloorTime(t, d).Add(d)
}

// ParseInterval converts an exchange interval label such as "1m", "5m", "1h"
// or "1d" to a duration.
func ParseInterval(label string) (time.Duration, error) {
	if len(label) < 2 {
		return 0, fmt.Errorf("%w: bad interval %q", ports.ErrInvalidRequest, label)
	}
	n, err := strconv.Atoi(label[:len(label)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad interval %q", ports.ErrInvalidRequest, label)
	}
	var unit time.Duration
	switch strings.ToLower(label[len(label)-1:]) {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: bad interval %q", ports.ErrInvalidRequest, label)
	}
	return time.Duration(n) * unit, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
