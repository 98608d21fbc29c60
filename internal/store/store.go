// Package store provides lead persistence backends for ZapLeads.
//
// It implements the same store contract over SQLite and PostgreSQL, plus an
// in-memory store used by tests and local development. DSN type detection
// picks the backend automatically.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/zapleads/zapleads/internal/models"
)

// Store is the persistence contract consumed by the conversation controller.
// Lookup failures are reported as (nil, error); callers on the event path
// treat errors as "no lead" and never escalate them.
type Store interface {
	// FindActiveLead returns the most recently created lead whose stored
	// phone matches any of the given representations and whose status is not
	// terminal. Returns (nil, nil) when no such lead exists.
	FindActiveLead(ctx context.Context, phoneVariants []string) (*models.Lead, error)

	// GetLead returns the lead with the given ID, or (nil, nil) if absent.
	GetLead(ctx context.Context, id string) (*models.Lead, error)

	// CreateLead persists a new lead.
	CreateLead(ctx context.Context, lead *models.Lead) error

	// UpdateStatus sets the lead's status.
	UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error

	// UpdatePhone repairs the lead's stored phone to the canonical display form.
	UpdatePhone(ctx context.Context, id, telefone string) error

	// ResetQualification returns a lead to the start of the flow: status novo,
	// initial completion, follow-up counters cleared.
	ResetQualification(ctx context.Context, id string) error

	// UpdateQualification records flow progress reported by the engine.
	UpdateQualification(ctx context.Context, id string, percentual int, idade, planoDesejado string) error

	// UpdateFollowUp advances the reminder bookkeeping.
	UpdateFollowUp(ctx context.Context, id string, count int, at time.Time) error

	// UpdateLastButtons mirrors the in-memory buttons cache into the lead.
	UpdateLastButtons(ctx context.Context, id string, labels []string) error

	// LogInteraction appends an audit record for a lead.
	LogInteraction(ctx context.Context, interaction *models.Interaction) error

	// ListOwners returns the CRM users leads can be attributed to.
	ListOwners(ctx context.Context) ([]models.Owner, error)

	// Close releases the underlying connection pool.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType inspects a connection string and reports "postgres" or
// "sqlite". Anything that does not look like a PostgreSQL DSN is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// New opens the store backend matching the DSN type.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
