package risk

import (
	"fmt"
	"sync"
	"time"

	"ichimokuBot/internal/ports"
)

// Config holds the limits applied to live orders.
type Config struct {
	MaxOrdersPerDay     int     // 0 disables the daily cap
	MinAvailableBalance float64 // Quote balance that must remain untouched by buys
	MinNotional         float64 // Smallest order value the exchange accepts
}

// Validate checks that the limits are usable.
func (c Config) Validate() error {
	if c.MaxOrdersPerDay < 0 {
		return fmt.Errorf("%w: max orders per day cannot be negative", ports.ErrConfigurationError)
	}
	if c.MinAvailableBalance < 0 {
		return fmt.Errorf("%w: min available balance cannot be negative", ports.ErrConfigurationError)
	}
	if c.MinNotional < 0 {
		return fmt.Errorf("%w: min notional cannot be negative", ports.ErrConfigurationError)
	}
	return nil
}

// Manager guards the signal trader's orders. It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	config      Config
	now         func() time.Time
	day         time.Time
	ordersToday int
}

// NewManager creates a risk manager with the given limits.
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Manager{config: config, now: time.Now}, nil
}

// SetMinNotional replaces the notional floor, typically with the value read
// from the exchange's symbol filters at startup.
func (m *Manager) SetMinNotional(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.config.MinNotional {
		m.config.MinNotional = v
	}
}

// CanBuy returns the quote amount that may be spent out of quoteBalance, or
// an error wrapping ErrRiskLimit.
func (m *Manager) CanBuy(quoteBalance float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDailyLimitLocked(); err != nil {
		return 0, err
	}
	spendable := quoteBalance - m.config.MinAvailableBalance
	if spendable <= 0 {
		return 0, fmt.Errorf("%w: quote balance %.8f does not exceed reserve %.8f",
			ports.ErrRiskLimit, quoteBalance, m.config.MinAvailableBalance)
	}
	if spendable < m.config.MinNotional {
		return 0, fmt.Errorf("%w: spendable %.8f below min notional %.8f",
			ports.ErrRiskLimit, spendable, m.config.MinNotional)
	}
	return spendable, nil
}

// CanSell checks that selling quantity at price is worth an order.
func (m *Manager) CanSell(quantity, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDailyLimitLocked(); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: nothing to sell", ports.ErrRiskLimit)
	}
	if price > 0 && quantity*price < m.config.MinNotional {
		return fmt.Errorf("%w: order value %.8f below min notional %.8f",
			ports.ErrRiskLimit, quantity*price, m.config.MinNotional)
	}
	return nil
}

// RecordOrder counts a placed order against today's limit.
func (m *Manager) RecordOrder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	m.ordersToday++
}

// OrdersToday returns the number of orders recorded since UTC midnight.
func (m *Manager) OrdersToday() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	return m.ordersToday
}

func (m *Manager) checkDailyLimitLocked() error {
	m.rollDayLocked()
	if m.config.MaxOrdersPerDay > 0 && m.ordersToday >= m.config.MaxOrdersPerDay {
		return fmt.Errorf("%w: daily order limit reached (%d/%d)",
			ports.ErrRiskLimit, m.ordersToday, m.config.MaxOrdersPerDay)
	}
	return nil
}

// rollDayLocked resets the counter when the UTC date changes.
func (m *Manager) rollDayLocked() {
	today := m.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(m.day) {
		m.day = today
		m.ordersToday = 0
	}
}
