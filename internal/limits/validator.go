// Package limits enforces rolling 24-hour daily send limits per sender.
// Limits are configured per (currency, country) pair; transfer history is
// aggregated per sender across all pairs and pruned lazily on each check.
package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hman38705/SwiftRemit/pkg/clock"
	"github.com/hman38705/SwiftRemit/pkg/store"
)

const windowSeconds = 86400

var (
	ErrLimitExceeded = errors.New("daily send limit exceeded")
	ErrOverflow      = errors.New("arithmetic overflow")
)

// TransferRecord is one accepted transfer in a sender's rolling history.
type TransferRecord struct {
	Timestamp uint64 `json:"timestamp"`
	Amount    int64  `json:"amount"`
}

// Validator checks candidate transfers against configured ceilings.
type Validator struct {
	store store.Store
	clock clock.Clock
}

// NewValidator creates a validator over the given store and clock.
func NewValidator(st store.Store, clk clock.Clock) *Validator {
	return &Validator{store: st, clock: clk}
}

// SetLimit configures the ceiling for a (currency, country) pair.
func (v *Validator) SetLimit(ctx context.Context, currency, country string, limit int64) error {
	value, err := json.Marshal(limit)
	if err != nil {
		return fmt.Errorf("failed to marshal limit: %w", err)
	}
	return v.store.Set(ctx, limitKey(currency, country), value)
}

// Limit returns the configured ceiling for a pair. Absence means unlimited.
func (v *Validator) Limit(ctx context.Context, currency, country string) (int64, bool, error) {
	raw, ok, err := v.store.Get(ctx, limitKey(currency, country))
	if err != nil || !ok {
		return 0, false, err
	}

	var limit int64
	if err := json.Unmarshal(raw, &limit); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal limit: %w", err)
	}
	return limit, true, nil
}

// Check validates a candidate transfer against the sender's rolling window.
// It returns the pruned history with the candidate appended and a tracked
// flag; when no limit is configured for the pair the transfer is allowed
// unconditionally and left untracked. Check never writes: the caller commits
// the history only once the funds have actually moved, so a rejected or
// failed transfer leaves no trace.
func (v *Validator) Check(ctx context.Context, sender string, amount int64, currency, country string) ([]TransferRecord, bool, error) {
	limit, configured, err := v.Limit(ctx, currency, country)
	if err != nil {
		return nil, false, err
	}
	if !configured {
		return nil, false, nil
	}

	now := v.clock.Now()
	var cutoff uint64
	if now > windowSeconds {
		cutoff = now - windowSeconds
	}

	history, err := v.history(ctx, sender)
	if err != nil {
		return nil, false, err
	}

	// Lazy pruning: entries at or before the cutoff are dropped here and
	// never written back.
	var total int64
	kept := make([]TransferRecord, 0, len(history)+1)
	for _, rec := range history {
		if rec.Timestamp > cutoff {
			total, err = checkedAdd(total, rec.Amount)
			if err != nil {
				return nil, false, err
			}
			kept = append(kept, rec)
		}
	}

	newTotal, err := checkedAdd(total, amount)
	if err != nil {
		return nil, false, err
	}
	if newTotal > limit {
		return nil, false, ErrLimitExceeded
	}

	kept = append(kept, TransferRecord{Timestamp: now, Amount: amount})
	return kept, true, nil
}

// Commit replaces the sender's history with the records returned by Check.
func (v *Validator) Commit(ctx context.Context, sender string, history []TransferRecord) error {
	value, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return v.store.Set(ctx, historyKey(sender), value)
}

func (v *Validator) history(ctx context.Context, sender string) ([]TransferRecord, error) {
	raw, ok, err := v.store.Get(ctx, historyKey(sender))
	if err != nil || !ok {
		return nil, err
	}

	var history []TransferRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return history, nil
}

func checkedAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

func limitKey(currency, country string) string {
	return fmt.Sprintf("limit:%s:%s", currency, country)
}

func historyKey(sender string) string {
	return fmt.Sprintf("transfers:%s", sender)
}
