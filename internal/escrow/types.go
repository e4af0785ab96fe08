package escrow

// Status is the remittance lifecycle state. Pending is the only state a
// transition may leave; Completed and Cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Config is the singleton contract configuration. Admin and Token are fixed
// at initialization; the fee may be updated by the admin.
type Config struct {
	Admin          string `json:"admin"`
	Token          string `json:"token"`
	PlatformFeeBps int64  `json:"platform_fee_bps"`
}

// Remittance is one escrow record. All fields except Status are immutable
// after creation; Fee is frozen at creation time and never recomputed, so
// later fee changes do not apply retroactively.
type Remittance struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Agent     string `json:"agent"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Currency  string `json:"currency"`
	Country   string `json:"country"`
	Status    Status `json:"status"`
	CreatedAt uint64 `json:"created_at"`
}
