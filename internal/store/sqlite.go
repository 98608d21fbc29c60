// Package store provides lead persistence backends for ZapLeads.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/zapleads/zapleads/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists leads in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")
	return &SQLiteStore{db: db}, nil
}

// FindActiveLead returns the newest non-terminal lead matching any phone variant.
func (s *SQLiteStore) FindActiveLead(ctx context.Context, phoneVariants []string) (*models.Lead, error) {
	if len(phoneVariants) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT %s FROM leads WHERE telefone IN (%s) AND status NOT IN ('fechado', 'perdido') ORDER BY criado_em DESC LIMIT 1`,
		leadColumns, placeholders("?", 1, len(phoneVariants)),
	)
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, variantArgs(phoneVariants)...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindActiveLead failed", "error", err)
		return nil, fmt.Errorf("failed to find active lead: %w", err)
	}
	return lead, nil
}

// GetLead returns the lead with the given ID.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE id = ?`, leadColumns)
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLead failed", "error", err, "lead_id", id)
		return nil, fmt.Errorf("failed to get lead %s: %w", id, err)
	}
	return lead, nil
}

// CreateLead persists a new lead.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	buttonsJSON, err := encodeButtons(lead.LastButtons)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, nome, telefone, status, percentual_conclusao, idade, plano_desejado, last_buttons, last_follow_up_at, follow_up_count, owner_email, origem, criado_em)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Nome, lead.Telefone, lead.Status, lead.PercentualConclusao,
		lead.Idade, lead.PlanoDesejado, buttonsJSON, lead.LastFollowUpAt,
		lead.FollowUpCount, lead.OwnerEmail, lead.Origem, lead.CriadoEm,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateLead failed", "error", err, "lead_id", lead.ID)
		return fmt.Errorf("failed to create lead: %w", err)
	}
	slog.Debug("SQLiteStore CreateLead succeeded", "lead_id", lead.ID)
	return nil
}

// UpdateStatus sets the lead's status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateStatus failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update status for lead %s: %w", id, err)
	}
	return nil
}

// UpdatePhone repairs the lead's stored phone representation.
func (s *SQLiteStore) UpdatePhone(ctx context.Context, id, telefone string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET telefone = ? WHERE id = ?`, telefone, id)
	if err != nil {
		slog.Error("SQLiteStore UpdatePhone failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update phone for lead %s: %w", id, err)
	}
	return nil
}

// ResetQualification returns the lead to the start of the flow.
func (s *SQLiteStore) ResetQualification(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, percentual_conclusao = ?, follow_up_count = 0, last_follow_up_at = NULL WHERE id = ?`,
		models.StatusNovo, models.InitialCompletion, id,
	)
	if err != nil {
		slog.Error("SQLiteStore ResetQualification failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to reset qualification for lead %s: %w", id, err)
	}
	return nil
}

// UpdateQualification records flow progress.
func (s *SQLiteStore) UpdateQualification(ctx context.Context, id string, percentual int, idade, planoDesejado string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET percentual_conclusao = ?,
			idade = CASE WHEN ? != '' THEN ? ELSE idade END,
			plano_desejado = CASE WHEN ? != '' THEN ? ELSE plano_desejado END
		 WHERE id = ?`,
		percentual, idade, idade, planoDesejado, planoDesejado, id,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateQualification failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update qualification for lead %s: %w", id, err)
	}
	return nil
}

// UpdateFollowUp advances the reminder bookkeeping.
func (s *SQLiteStore) UpdateFollowUp(ctx context.Context, id string, count int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET follow_up_count = ?, last_follow_up_at = ? WHERE id = ?`, count, at, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateFollowUp failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update follow-up for lead %s: %w", id, err)
	}
	return nil
}

// UpdateLastButtons mirrors the buttons cache into the lead.
func (s *SQLiteStore) UpdateLastButtons(ctx context.Context, id string, labels []string) error {
	buttonsJSON, err := encodeButtons(labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE leads SET last_buttons = ? WHERE id = ?`, buttonsJSON, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateLastButtons failed", "error", err, "lead_id", id)
		return fmt.Errorf("failed to update last buttons for lead %s: %w", id, err)
	}
	return nil
}

// LogInteraction appends an audit record.
func (s *SQLiteStore) LogInteraction(ctx context.Context, interaction *models.Interaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, lead_id, tipo, conteudo, criado_em) VALUES (?, ?, ?, ?, ?)`,
		interaction.ID, interaction.LeadID, interaction.Tipo, interaction.Conteudo, interaction.CriadoEm,
	)
	if err != nil {
		slog.Error("SQLiteStore LogInteraction failed", "error", err, "lead_id", interaction.LeadID)
		return fmt.Errorf("failed to log interaction: %w", err)
	}
	return nil
}

// ListOwners returns the CRM users leads can be attributed to.
func (s *SQLiteStore) ListOwners(ctx context.Context) ([]models.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, nome FROM owners ORDER BY email`)
	if err != nil {
		slog.Error("SQLiteStore ListOwners failed", "error", err)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
