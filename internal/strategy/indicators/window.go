package indicators

import "ichimokuBot/internal/domain"

// RollingMax returns the maximum of each window of the given length ending at
// every index. Indices before the first full window are None.
func RollingMax(values []float64, window int) []domain.Float {
	return rollingExtreme(values, window, func(a, b float64) bool { return a >= b })
}

// RollingMin returns the minimum of each window of the given length ending at
// every index. Indices before the first full window are None.
func RollingMin(values []float64, window int) []domain.Float {
	return rollingExtreme(values, window, func(a, b float64) bool { return a <= b })
}

// rollingExtreme keeps a monotonic deque of indices whose values are ordered by
// dominates; the head is always the extreme of the current window.
func rollingExtreme(values []float64, window int, dominates func(a, b float64) bool) []domain.Float {
	out := make([]domain.Float, len(values))
	if window <= 0 {
		return out
	}

	deque := make([]int, 0, len(values))
	head := 0
	for i, v := range values {
		for len(deque) > head && dominates(v, values[deque[len(deque)-1]]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[head] <= i-window {
			head++
		}
		if i >= window-1 {
			out[i] = domain.Some(values[deque[head]])
		}
	}
	return out
}

// RollingMidpoint returns (max(high) + min(low)) / 2 over each window.
func RollingMidpoint(highs, lows []float64, window int) []domain.Float {
	hi := RollingMax(highs, window)
	lo := RollingMin(lows, window)
	out := make([]domain.Float, len(hi))
	for i := range hi {
		out[i] = hi[i].Mid(lo[i])
	}
	return out
}

// ShiftForward moves every value k positions later. The first k entries become None.
func ShiftForward(col []domain.Float, k int) []domain.Float {
	if k < 0 {
		return ShiftBackward(col, -k)
	}
	out := make([]domain.Float, len(col))
	for i := k; i < len(col); i++ {
		out[i] = col[i-k]
	}
	return out
}

// ShiftBackward moves every value k positions earlier. The last k entries become None.
func ShiftBackward(col []domain.Float, k int) []domain.Float {
	if k < 0 {
		return ShiftForward(col, -k)
	}
	out := make([]domain.Float, len(col))
	for i := 0; i+k < len(col); i++ {
		out[i] = col[i+k]
	}
	return out
}
