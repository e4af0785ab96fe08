package token

import (
	"context"
	"sync"
)

// MemLedger is an in-process token ledger used by tests and single-node
// deployments.
type MemLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[string]int64)}
}

func (l *MemLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemLedger) Balance(ctx context.Context, account string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}

func (l *MemLedger) Mint(ctx context.Context, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[to] += amount
	return nil
}
