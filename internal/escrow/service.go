// Package escrow implements the remittance escrow core: configuration,
// agent registry, the remittance state machine, and the fee treasury.
package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hman38705/SwiftRemit/internal/limits"
	"github.com/hman38705/SwiftRemit/internal/token"
	"github.com/hman38705/SwiftRemit/pkg/clock"
	"github.com/hman38705/SwiftRemit/pkg/messaging"
	"github.com/hman38705/SwiftRemit/pkg/store"
)

const (
	maxFeeBps = 10000

	keyConfig   = "config"
	keyFees     = "fees"
	keyNextID   = "next_id"
	agentPrefix = "agent:"
)

// Service is the escrow core. Operations are serialized behind a mutex,
// giving each the sequential-transaction semantics the state machine
// assumes; the caller argument on mutating operations is the authenticated
// principal and each operation enforces which principal it requires.
type Service struct {
	address string // custody account holding escrowed funds
	store   store.Store
	clock   clock.Clock
	token   token.Service
	events  messaging.Publisher
	limits  *limits.Validator

	mu sync.Mutex
}

// NewService creates an escrow core custodying funds under the given
// address.
func NewService(address string, st store.Store, clk clock.Clock, tok token.Service, events messaging.Publisher) *Service {
	return &Service{
		address: address,
		store:   st,
		clock:   clk,
		token:   tok,
		events:  events,
		limits:  limits.NewValidator(st, clk),
	}
}

// Initialize persists the contract configuration and zeroes the treasury
// and ID counter. It may succeed exactly once.
func (s *Service) Initialize(ctx context.Context, caller, admin, tokenID string, feeBps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != admin {
		return ErrUnauthorized
	}
	if feeBps < 0 || feeBps > maxFeeBps {
		return ErrInvalidFee
	}

	if _, ok, err := s.store.Get(ctx, keyConfig); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}

	cfg := Config{Admin: admin, Token: tokenID, PlatformFeeBps: feeBps}
	if err := s.setJSON(ctx, keyConfig, cfg); err != nil {
		return err
	}
	if err := s.setJSON(ctx, keyFees, int64(0)); err != nil {
		return err
	}
	return s.setJSON(ctx, keyNextID, uint64(0))
}

// UpdateFee changes the platform fee for future remittances only.
func (s *Service) UpdateFee(ctx context.Context, caller string, feeBps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	if feeBps < 0 || feeBps > maxFeeBps {
		return ErrInvalidFee
	}

	cfg.PlatformFeeBps = feeBps
	return s.setJSON(ctx, keyConfig, cfg)
}

// PlatformFeeBps returns the current fee in basis points.
func (s *Service) PlatformFeeBps(ctx context.Context) (int64, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.PlatformFeeBps, nil
}

// RegisterAgent marks an agent as eligible to receive remittances.
// Registering an already-registered agent is not an error.
func (s *Service) RegisterAgent(ctx context.Context, caller, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.setJSON(ctx, agentPrefix+agent, true); err != nil {
		return err
	}

	s.publish(ctx, messaging.EventTypeAgentRegistered, messaging.AgentEvent{Agent: agent})
	return nil
}

// RemoveAgent clears an agent's registration. Remittances already addressed
// to the agent are unaffected.
func (s *Service) RemoveAgent(ctx context.Context, caller, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.setJSON(ctx, agentPrefix+agent, false); err != nil {
		return err
	}

	s.publish(ctx, messaging.EventTypeAgentRemoved, messaging.AgentEvent{Agent: agent})
	return nil
}

// IsAgentRegistered reports whether the agent may receive remittances.
func (s *Service) IsAgentRegistered(ctx context.Context, agent string) (bool, error) {
	if _, err := s.loadConfig(ctx); err != nil {
		return false, err
	}

	var registered bool
	ok, err := s.getJSON(ctx, agentPrefix+agent, &registered)
	if err != nil {
		return false, err
	}
	return ok && registered, nil
}

// SetDailyLimit configures the rolling-window ceiling for a
// (currency, country) pair.
func (s *Service) SetDailyLimit(ctx context.Context, caller, currency, country string, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	return s.limits.SetLimit(ctx, currency, country, limit)
}

// DailyLimit returns the configured ceiling for a pair; ok is false when no
// limit is configured (unlimited).
func (s *Service) DailyLimit(ctx context.Context, currency, country string) (int64, bool, error) {
	if _, err := s.loadConfig(ctx); err != nil {
		return 0, false, err
	}
	return s.limits.Limit(ctx, currency, country)
}

// CreateRemittance pulls the gross amount from the sender into custody and
// records a Pending remittance. The sender is the authenticated caller. The
// fee is computed here and frozen; the net payout happens at confirmation.
func (s *Service) CreateRemittance(ctx context.Context, sender, agent string, amount int64, currency, country string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var registered bool
	ok, err := s.getJSON(ctx, agentPrefix+agent, &registered)
	if err != nil {
		return 0, err
	}
	if !ok || !registered {
		return 0, ErrAgentNotRegistered
	}

	history, tracked, err := s.limits.Check(ctx, sender, amount, currency, country)
	if err != nil {
		return 0, err
	}

	fee := computeFee(amount, cfg.PlatformFeeBps)

	// External transfer before any write: if the pull fails, no record,
	// counter bump, or history entry is left behind.
	if err := s.token.Transfer(ctx, sender, s.address, amount); err != nil {
		return 0, fmt.Errorf("failed to pull funds into custody: %w", err)
	}

	var nextID uint64
	if _, err := s.getJSON(ctx, keyNextID, &nextID); err != nil {
		return 0, err
	}
	nextID++

	rec := Remittance{
		ID:        nextID,
		Sender:    sender,
		Agent:     agent,
		Amount:    amount,
		Fee:       fee,
		Currency:  currency,
		Country:   country,
		Status:    StatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.setJSON(ctx, remittanceKey(nextID), rec); err != nil {
		return 0, err
	}
	if err := s.setJSON(ctx, keyNextID, nextID); err != nil {
		return 0, err
	}
	if tracked {
		if err := s.limits.Commit(ctx, sender, history); err != nil {
			return 0, err
		}
	}

	s.publish(ctx, messaging.EventTypeRemittanceCreated, remittanceEvent(rec))
	return nextID, nil
}

// ConfirmPayout pays the net amount to the agent and credits the treasury
// with the frozen fee. Only the record's agent may confirm, and only from
// Pending.
func (s *Service) ConfirmPayout(ctx context.Context, caller string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadConfig(ctx); err != nil {
		return err
	}

	rec, err := s.loadRemittance(ctx, id)
	if err != nil {
		return err
	}
	if caller != rec.Agent {
		return ErrUnauthorized
	}
	if rec.Status != StatusPending {
		return ErrInvalidStatus
	}

	// At 10000 bps the whole amount is fee and there is nothing to pay out;
	// the ledger rejects zero-value transfers, so skip the call.
	if net := rec.Amount - rec.Fee; net > 0 {
		if err := s.token.Transfer(ctx, s.address, rec.Agent, net); err != nil {
			return fmt.Errorf("failed to pay agent: %w", err)
		}
	}

	var fees int64
	if _, err := s.getJSON(ctx, keyFees, &fees); err != nil {
		return err
	}
	if err := s.setJSON(ctx, keyFees, fees+rec.Fee); err != nil {
		return err
	}

	rec.Status = StatusCompleted
	if err := s.setJSON(ctx, remittanceKey(id), rec); err != nil {
		return err
	}

	s.publish(ctx, messaging.EventTypeRemittanceCompleted, remittanceEvent(rec))
	return nil
}

// CancelRemittance refunds the gross amount to the sender. The record's
// sender or the admin may cancel, and only from Pending.
func (s *Service) CancelRemittance(ctx context.Context, caller string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return err
	}

	rec, err := s.loadRemittance(ctx, id)
	if err != nil {
		return err
	}
	if caller != rec.Sender && caller != cfg.Admin {
		return ErrUnauthorized
	}
	if rec.Status != StatusPending {
		return ErrInvalidStatus
	}

	if err := s.token.Transfer(ctx, s.address, rec.Sender, rec.Amount); err != nil {
		return fmt.Errorf("failed to refund sender: %w", err)
	}

	rec.Status = StatusCancelled
	if err := s.setJSON(ctx, remittanceKey(id), rec); err != nil {
		return err
	}

	s.publish(ctx, messaging.EventTypeRemittanceCancelled, remittanceEvent(rec))
	return nil
}

// GetRemittance returns a remittance record by ID.
func (s *Service) GetRemittance(ctx context.Context, id uint64) (Remittance, error) {
	if _, err := s.loadConfig(ctx); err != nil {
		return Remittance{}, err
	}
	return s.loadRemittance(ctx, id)
}

// AccumulatedFees returns the treasury balance.
func (s *Service) AccumulatedFees(ctx context.Context) (int64, error) {
	if _, err := s.loadConfig(ctx); err != nil {
		return 0, err
	}

	var fees int64
	if _, err := s.getJSON(ctx, keyFees, &fees); err != nil {
		return 0, err
	}
	return fees, nil
}

// WithdrawFees transfers the entire treasury balance to the recipient and
// resets the accumulator. Admin only; partial withdrawals are not supported.
func (s *Service) WithdrawFees(ctx context.Context, caller, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}

	var fees int64
	if _, err := s.getJSON(ctx, keyFees, &fees); err != nil {
		return err
	}
	if fees == 0 {
		return ErrNoFeesToWithdraw
	}

	if err := s.token.Transfer(ctx, s.address, recipient, fees); err != nil {
		return fmt.Errorf("failed to withdraw fees: %w", err)
	}
	if err := s.setJSON(ctx, keyFees, int64(0)); err != nil {
		return err
	}

	s.publish(ctx, messaging.EventTypeFeesWithdrawn, messaging.WithdrawalEvent{
		Recipient: recipient,
		Amount:    fees,
	})
	return nil
}

// computeFee returns floor(amount * feeBps / 10000). The multiply runs in
// decimal space so large amounts cannot overflow int64 mid-computation.
func computeFee(amount, feeBps int64) int64 {
	fee := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(feeBps)).
		Div(decimal.NewFromInt(maxFeeBps)).
		Floor()
	return fee.IntPart()
}

func (s *Service) requireAdmin(ctx context.Context, caller string) error {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) loadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	ok, err := s.getJSON(ctx, keyConfig, &cfg)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotInitialized
	}
	return cfg, nil
}

func (s *Service) loadRemittance(ctx context.Context, id uint64) (Remittance, error) {
	var rec Remittance
	ok, err := s.getJSON(ctx, remittanceKey(id), &rec)
	if err != nil {
		return Remittance{}, err
	}
	if !ok {
		return Remittance{}, ErrRemittanceNotFound
	}
	return rec, nil
}

func (s *Service) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) setJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.store.Set(ctx, key, raw)
}

// publish is fire-and-forget: the state change is already committed and a
// notification failure must not fail the operation.
func (s *Service) publish(ctx context.Context, eventType string, data interface{}) {
	s.events.Publish(ctx, eventType, data)
}

func remittanceKey(id uint64) string {
	return fmt.Sprintf("remittance:%d", id)
}

func remittanceEvent(rec Remittance) messaging.RemittanceEvent {
	return messaging.RemittanceEvent{
		RemittanceID: rec.ID,
		Sender:       rec.Sender,
		Agent:        rec.Agent,
		Amount:       rec.Amount,
		Fee:          rec.Fee,
		Status:       string(rec.Status),
	}
}
