package controller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zapleads/zapleads/internal/identity"
	"github.com/zapleads/zapleads/internal/models"
)

// findActiveLead resolves a raw identifier to its active lead, tolerating
// phone-format variance. Lookup errors degrade to nil so the event path can
// still create a fresh lead.
func (c *Controller) findActiveLead(ctx context.Context, raw string) *models.Lead {
	variants := identity.Variants(raw)
	if len(variants) == 0 {
		return nil
	}
	lead, err := c.store.FindActiveLead(ctx, variants)
	if err != nil {
		slog.Error("Controller active lead lookup failed", "error", err, "raw", raw)
		return nil
	}
	return lead
}

// getOrCreateLead reuses the active lead for an identifier or creates a new
// one. A reused lead has its stored phone repaired to the canonical display
// format when it was persisted in a denormalized form.
func (c *Controller) getOrCreateLead(ctx context.Context, raw, pushName string) (*models.Lead, error) {
	display := identity.DisplayFormat(raw)

	if lead := c.findActiveLead(ctx, raw); lead != nil {
		if display != "" && lead.Telefone != display {
			if err := c.store.UpdatePhone(ctx, lead.ID, display); err != nil {
				slog.Error("Controller phone repair failed", "error", err, "lead_id", lead.ID)
			} else {
				lead.Telefone = display
			}
		}
		return lead, nil
	}

	owner := c.pickOwner(ctx)
	nome := strings.TrimSpace(pushName)
	if nome == "" {
		nome = display
	}
	lead := &models.Lead{
		ID:                  uuid.NewString(),
		Nome:                nome,
		Telefone:            display,
		Status:              models.StatusNovo,
		PercentualConclusao: models.InitialCompletion,
		OwnerEmail:          owner,
		Origem:              c.cfg.Origin,
		CriadoEm:            c.now(),
	}
	if err := c.store.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	slog.Info("Controller lead created", "lead_id", lead.ID, "telefone", display, "owner", owner)

	interaction := &models.Interaction{
		ID:       uuid.NewString(),
		LeadID:   lead.ID,
		Tipo:     "criacao",
		Conteudo: "Lead criado via " + c.cfg.Origin,
		CriadoEm: c.now(),
	}
	if err := c.store.LogInteraction(ctx, interaction); err != nil {
		slog.Error("Controller interaction log failed", "error", err, "lead_id", lead.ID)
	}
	return lead, nil
}

// pickOwner chooses the owner new leads are attributed to: the configured
// primary email first, then a name/email substring match, then the first
// available owner. Returns "" when no owners exist.
func (c *Controller) pickOwner(ctx context.Context) string {
	owners, err := c.store.ListOwners(ctx)
	if err != nil {
		slog.Error("Controller owner listing failed", "error", err)
		return ""
	}
	if len(owners) == 0 {
		return ""
	}
	if c.cfg.PrimaryOwnerEmail != "" {
		for _, o := range owners {
			if strings.EqualFold(o.Email, c.cfg.PrimaryOwnerEmail) {
				return o.Email
			}
		}
	}
	if hint := strings.ToLower(c.cfg.OwnerNameHint); hint != "" {
		for _, o := range owners {
			if strings.Contains(strings.ToLower(o.Nome), hint) || strings.Contains(strings.ToLower(o.Email), hint) {
				return o.Email
			}
		}
	}
	return owners[0].Email
}

// leadAge returns how long ago the lead entered the funnel.
func (c *Controller) leadAge(lead *models.Lead) time.Duration {
	return c.now().Sub(lead.CriadoEm)
}
