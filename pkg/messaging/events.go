package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeAgentRegistered = "agent.registered"
	EventTypeAgentRemoved    = "agent.removed"

	EventTypeRemittanceCreated   = "remittance.created"
	EventTypeRemittanceCompleted = "remittance.completed"
	EventTypeRemittanceCancelled = "remittance.cancelled"

	EventTypeFeesWithdrawn = "fees.withdrawn"
)

// Envelope is the wire format for every published event.
type Envelope struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// AgentEvent contains agent registry event data.
type AgentEvent struct {
	Agent string `json:"agent"`
}

// RemittanceEvent contains remittance lifecycle event data.
type RemittanceEvent struct {
	RemittanceID uint64 `json:"remittance_id"`
	Sender       string `json:"sender"`
	Agent        string `json:"agent"`
	Amount       int64  `json:"amount"`
	Fee          int64  `json:"fee"`
	Status       string `json:"status"`
}

// WithdrawalEvent contains fee withdrawal data.
type WithdrawalEvent struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// Publisher delivers fire-and-forget notifications. The escrow core
// publishes after its own state is committed and does not fail an operation
// on a publish error.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Recorder is an in-memory publisher that captures events for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

// NewRecorder creates an empty event recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, eventType string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Envelope{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
	return nil
}

// Events returns a snapshot of everything published so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event and whether one exists.
func (r *Recorder) Last() (Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return Envelope{}, false
	}
	return r.events[len(r.events)-1], true
}
