package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/zapleads/zapleads/internal/models"
)

const labelSyncTimeout = 15 * time.Second

// syncLabelAsync reflects the lead's temperature onto transport labels without
// blocking the reply path. Fire-and-forget.
func (c *Controller) syncLabelAsync(lead *models.Lead, raw string) {
	snapshot := *lead
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), labelSyncTimeout)
		defer cancel()
		c.syncLabel(ctx, &snapshot, raw)
	}()
}

// syncLabel classifies the lead hot (fully qualified) or cold and applies the
// matching conversation label while removing the opposite one. Label sync is
// cosmetic for the CRM view; missing IDs and transport failures are logged,
// never escalated.
func (c *Controller) syncLabel(ctx context.Context, lead *models.Lead, raw string) {
	if c.cfg.HotLabelID == "" || c.cfg.ColdLabelID == "" {
		slog.Debug("Controller label sync skipped, label IDs not configured", "lead_id", lead.ID)
		return
	}
	add, remove := c.cfg.ColdLabelID, c.cfg.HotLabelID
	if lead.Qualified() {
		add, remove = c.cfg.HotLabelID, c.cfg.ColdLabelID
	}
	if err := c.transport.ApplyLabel(ctx, raw, []string{add}, []string{remove}); err != nil {
		slog.Error("Controller label sync failed", "error", err, "lead_id", lead.ID, "label", add)
		return
	}
	slog.Debug("Controller label synced", "lead_id", lead.ID, "label", add)
}
