// Package store provides lead persistence backends for ZapLeads.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/zapleads/zapleads/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists leads in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// FindActiveLead returns the newest non-terminal lead matching any phone variant.
func (s *PostgresStore) FindActiveLead(ctx context.Context, phoneVariants []string) (*models.Lead, error) {
	if len(phoneVariants) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT %s FROM leads WHERE telefone IN (%s) AND status NOT IN ('fechado', 'perdido') ORDER BY criado_em DESC LIMIT 1`,
		leadColumns, placeholders("$", 1, len(phoneVariants)),
	)
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, variantArgs(phoneVariants)...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindActiveLead failed", "error", err)
		return nil, fmt.Errorf("failed to find active lead: %w", err)
	}
	return lead, nil
}

// GetLead returns the lead with the given ID.
func (s *PostgresStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE id = $1`, leadColumns)
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLead failed", "error", err, "lead_id", id)
		return nil, fmt.Errorf("failed to get lead %s: %w", id, err)
	}
	return lead, nil
}

// CreateLead persists a new lead.
func (s *PostgresStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	buttonsJSON, err := encodeButtons(lead.LastButtons)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, nome, telefone, status, percentual_conclusao, idade, plano_desejado, last_buttons, last_follow_up_at, follow_up_count, owner_email, origem, criado_em)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		lead.ID, lead.Nome, lead.Telefone, lead.Status, lead.PercentualConclusao,
		lead.Idade, lead.PlanoDesejado, buttonsJSON, lead.LastFollowUpAt,
		lead.FollowUpCount, lead.OwnerEmail, lead.Origem, lead.CriadoEm,
	)
	if err != nil {
		slog.Error("PostgresStore CreateLead failed", "error", err, "lead_id", lead.ID)
		return fmt.Errorf("failed to create lead: %w", err)
	}
	slog.Debug("PostgresStore CreateLead succeeded", "lead_id", lead.ID)
	return nil
}

// UpdateStatus sets the lead's status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		slog.Error("PostgresStore UpdateStatus failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update status for lead %s: %w", id, err)
	}
	return nil
}

// UpdatePhone repairs the lead's stored phone representation.
func (s *PostgresStore) UpdatePhone(ctx context.Context, id, telefone string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET telefone = $1 WHERE id = $2`, telefone, id)
	if err != nil {
		slog.Error("PostgresStore UpdatePhone failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update phone for lead %s: %w", id, err)
	}
	return nil
}

// ResetQualification returns the lead to the start of the flow.
func (s *PostgresStore) ResetQualification(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = $1, percentual_conclusao = $2, follow_up_count = 0, last_follow_up_at = NULL WHERE id = $3`,
		models.StatusNovo, models.InitialCompletion, id,
	)
	if err != nil {
		slog.Error("PostgresStore ResetQualification failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to reset qualification for lead %s: %w", id, err)
	}
	return nil
}

// UpdateQualification records flow progress.
func (s *PostgresStore) UpdateQualification(ctx context.Context, id string, percentual int, idade, planoDesejado string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET percentual_conclusao = $1,
			idade = CASE WHEN $2 != '' THEN $2 ELSE idade END,
			plano_desejado = CASE WHEN $3 != '' THEN $3 ELSE plano_desejado END
		 WHERE id = $4`,
		percentual, idade, planoDesejado, id,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateQualification failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update qualification for lead %s: %w", id, err)
	}
	return nil
}

// UpdateFollowUp advances the reminder bookkeeping.
func (s *PostgresStore) UpdateFollowUp(ctx context.Context, id string, count int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET follow_up_count = $1, last_follow_up_at = $2 WHERE id = $3`, count, at, id)
	if err != nil {
		slog.Error("PostgresStore UpdateFollowUp failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update follow-up for lead %s: %w", id, err)
	}
	return nil
}

// UpdateLastButtons mirrors the buttons cache into the lead.
func (s *PostgresStore) UpdateLastButtons(ctx context.Context, id string, labels []string) error {
	buttonsJSON, err := encodeButtons(labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE leads SET last_buttons = $1 WHERE id = $2`, buttonsJSON, id)
	if err != nil {
		slog.Error("PostgresStore UpdateLastButtons failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update last buttons for lead %s: %w", id, err)
	}
	return nil
}

// LogInteraction appends an audit record.
func (s *PostgresStore) LogInteraction(ctx context.Context, interaction *models.Interaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, lead_id, tipo, conteudo, criado_em) VALUES ($1, $2, $3, $4, $5)`,
		interaction.ID, interaction.LeadID, interaction.Tipo, interaction.Conteudo, interaction.CriadoEm,
	)
	if err != nil {
		slog.Error("PostgresStore LogInteraction failed", "error", err, "lead_id", interaction.LeadID)
		return fmt.Errorf("failed to log interaction: %w", err)
	}
	return nil
}

// ListOwners returns the CRM users leads can be attributed to.
func (s *PostgresStore) ListOwners(ctx context.Context) ([]models.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, nome FROM owners ORDER BY email`)
	if err != nil {
		slog.Error("PostgresStore ListOwners failed", "error", err)
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()
	var owners []models.Owner
	for rows.Next() {
		var o models.Owner
		if err := rows.Scan(&o.Email, &o.Nome); err != nil {
			return nil, fmt.Errorf("failed to scan owner row: %w", err)
		}
		owners = append(owners, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owner rows: %w", err)
	}
	return owners, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
