// Package escrow moves rating collateral out of the ledger's custody.
package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Payout is one completed transfer.
type Payout struct {
	To     string    `json:"to"`
	Amount uint64    `json:"amount"`
	Memo   string    `json:"memo"`
	At     time.Time `json:"at"`
}

// Memory is an in-process escrow that credits balances. It backs tests and
// single-node deployments without a settlement service. Transfers are
// idempotent on memo, like the Idempotency-Key of HTTPClient.
type Memory struct {
	mu       sync.Mutex
	balances map[string]uint64
	payouts  []Payout
	settled  map[string]Payout
	failNext error
	hook     func(ctx context.Context) error
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]uint64),
		settled:  make(map[string]Payout),
	}
}

// FailNext makes the next Transfer fail with err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// OnTransfer installs fn to run before each transfer is credited. A non-nil
// result fails the transfer.
func (m *Memory) OnTransfer(fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

func (m *Memory) Transfer(ctx context.Context, to string, amount uint64, memo string) error {
	m.mu.Lock()
	hook := m.hook
	if err := m.failNext; err != nil {
		m.failNext = nil
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if to == "" {
		return fmt.Errorf("transfer: empty recipient")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.settled[memo]; ok && memo != "" {
		if prev.To != to || prev.Amount != amount {
			return fmt.Errorf("transfer: memo %q already settled to %s for %d", memo, prev.To, prev.Amount)
		}
		return nil
	}
	p := Payout{To: to, Amount: amount, Memo: memo, At: time.Now().UTC()}
	m.balances[to] += amount
	m.payouts = append(m.payouts, p)
	if memo != "" {
		m.settled[memo] = p
	}
	return nil
}

// Balance returns the total paid out to who.
func (m *Memory) Balance(who string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[who]
}

// Payouts returns completed transfers in order.
func (m *Memory) Payouts() []Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payout(nil), m.payouts...)
}
