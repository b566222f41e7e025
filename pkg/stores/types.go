package stores

import (
	"context"
	"database/sql"
	"time"
)

// RegistrationAction distinguishes registry membership changes.
type RegistrationAction string

const (
	RegistrationActionRegistered   RegistrationAction = "registered"
	RegistrationActionUnregistered RegistrationAction = "unregistered"
)

// BulkRun is one journaled bulk operation.
type BulkRun struct {
	ID           string     `json:"id"`
	Operation    string     `json:"operation"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  time.Time  `json:"completed_at"`
	Error        *string    `json:"error,omitempty"`
	Transitioned int        `json:"transitioned"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	Unchanged    int        `json:"unchanged"`
	Outcomes     []*Outcome `json:"outcomes,omitempty"`
}

// Outcome is the journaled result for one component within a bulk run.
type Outcome struct {
	RunID     string  `json:"run_id"`
	Seq       int     `json:"seq"`
	Component string  `json:"component"`
	Kind      string  `json:"kind"` // transitioned, skipped, failed, unchanged
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// TransitionRecord is one journaled lifecycle callback.
type TransitionRecord struct {
	ID         int64         `json:"id"`
	RunID      *string       `json:"run_id,omitempty"`
	Component  string        `json:"component"`
	Operation  string        `json:"operation"`
	FromStatus string        `json:"from_status"`
	ToStatus   string        `json:"to_status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      *string       `json:"error,omitempty"`
	ErrorKind  *string       `json:"error_kind,omitempty"`
	ErrorCode  *int          `json:"error_code,omitempty"`
}

// RegistrationRecord is one journaled registry membership change.
type RegistrationRecord struct {
	ID         int64              `json:"id"`
	Component  string             `json:"component"`
	Action     RegistrationAction `json:"action"`
	Priority   string             `json:"priority"`
	Status     string             `json:"status"`
	Generation uint64             `json:"generation"`
	Timestamp  time.Time          `json:"timestamp"`
}

// TransitionFilter narrows ListTransitions. Nil fields match everything.
type TransitionFilter struct {
	RunID      *string
	Component  *string
	FailedOnly bool
	Limit      int
	Offset     int
}

// Store defines the interface for the lifecycle journal.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Bulk run operations
	RecordBulkRun(ctx context.Context, run *BulkRun) error
	GetBulkRun(ctx context.Context, id string) (*BulkRun, error)
	ListBulkRuns(ctx context.Context, limit, offset int) ([]*BulkRun, error)
	DeleteBulkRun(ctx context.Context, id string) error

	// Transition operations
	AppendTransition(ctx context.Context, rec *TransitionRecord) error
	ListTransitions(ctx context.Context, filter TransitionFilter) ([]*TransitionRecord, error)
	LastTransition(ctx context.Context, component string) (*TransitionRecord, error)

	// Registration operations
	AppendRegistration(ctx context.Context, rec *RegistrationRecord) error
	ListRegistrations(ctx context.Context, component *string, limit, offset int) ([]*RegistrationRecord, error)

	// Retention
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
