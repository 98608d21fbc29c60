package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zapleads/zapleads/internal/models"
)

// leadColumns is the canonical column order used by every lead SELECT.
const leadColumns = "id, nome, telefone, status, percentual_conclusao, idade, plano_desejado, last_buttons, last_follow_up_at, follow_up_count, owner_email, origem, criado_em"

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanLead scans a lead row in leadColumns order.
func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var buttonsJSON string
	var lastFollowUp sql.NullTime
	err := row.Scan(
		&l.ID, &l.Nome, &l.Telefone, &l.Status, &l.PercentualConclusao,
		&l.Idade, &l.PlanoDesejado, &buttonsJSON, &lastFollowUp,
		&l.FollowUpCount, &l.OwnerEmail, &l.Origem, &l.CriadoEm,
	)
	if err != nil {
		return nil, err
	}
	if lastFollowUp.Valid {
		l.LastFollowUpAt = &lastFollowUp.Time
	}
	if buttonsJSON != "" {
		if err := json.Unmarshal([]byte(buttonsJSON), &l.LastButtons); err != nil {
			return nil, fmt.Errorf("failed to decode last_buttons for lead %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

// encodeButtons serializes option labels for the last_buttons column.
func encodeButtons(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode last_buttons: %w", err)
	}
	return string(data), nil
}

// placeholders builds a comma-separated placeholder list. Style "$" produces
// $start..$start+n-1 for Postgres; anything else produces "?" markers.
func placeholders(style string, start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if style == "$" {
			parts[i] = fmt.Sprintf("$%d", start+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// variantArgs converts a string slice into query arguments.
func variantArgs(variants []string) []interface{} {
	args := make([]interface{}, len(variants))
	for i, v := range variants {
		args[i] = v
	}
	return args
}
