package indicators

import (
	"fmt"

	"ichimokuBot/internal/ports"
)

// IchimokuConfig holds the four Ichimoku window parameters.
type IchimokuConfig struct {
	TenkanPeriod  int // Conversion line window, e.g. 9
	KijunPeriod   int // Base line window, e.g. 26
	SenkouBPeriod int // Leading span B window, e.g. 52
	Offset        int // Forward shift of the spans and backward shift of chikou, e.g. 26
}

// DefaultIchimokuConfig returns the classic 9/26/52/26 settings.
func DefaultIchimokuConfig() IchimokuConfig {
	return IchimokuConfig{
		TenkanPeriod:  9,
		KijunPeriod:   26,
		SenkouBPeriod: 52,
		Offset:        26,
	}
}

// Validate checks that every window is positive and the offset is not negative.
func (c IchimokuConfig) Validate() error {
	if c.TenkanPeriod <= 0 || c.KijunPeriod <= 0 || c.SenkouBPeriod <= 0 {
		return fmt.Errorf("%w: ichimoku periods must be positive (tenkan=%d kijun=%d senkouB=%d)",
			ports.ErrInvalidConfiguration, c.TenkanPeriod, c.KijunPeriod, c.SenkouBPeriod)
	}
	if c.Offset < 0 {
		return fmt.Errorf("%w: ichimoku offset cannot be negative (%d)", ports.ErrInvalidConfiguration, c.Offset)
	}
	return nil
}

func (c IchimokuConfig) longestWindow() int {
	longest := c.SenkouBPeriod
	if c.KijunPeriod > longest {
		longest = c.KijunPeriod
	}
	if c.TenkanPeriod > longest {
		longest = c.TenkanPeriod
	}
	return longest
}

// WarmupBars returns the number of leading bars whose senkou spans cannot be
// defined: the longest window minus one, plus the forward shift.
func (c IchimokuConfig) WarmupBars() int {
	return c.longestWindow() - 1 + c.Offset
}

// RequiredDataPoints returns the shortest series that yields at least one bar
// with all five lines defined. Chikou needs Offset bars after that bar.
func (c IchimokuConfig) RequiredDataPoints() int {
	return c.longestWindow() + 2*c.Offset
}
