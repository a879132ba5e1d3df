package enforcement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"resellerhq/warden/pkg/panels"
)

// UpdateQuotas applies an operator edit under the panel lock. Changes to
// the time quota or the creation anchor are written to the audit log.
func (c *Controller) UpdateQuotas(ctx context.Context, panelID int64, upd *panels.Update) error {
	if upd == nil || upd.Empty() {
		return errors.New("quota update is empty")
	}

	release, err := c.locker.Lock(ctx, panelID)
	if err != nil {
		return fmt.Errorf("lock panel %d: %w", panelID, err)
	}
	defer release()

	if err := c.store.UpdatePanel(ctx, panelID, upd); err != nil {
		if errors.Is(err, panels.ErrPanelNotFound) {
			return err
		}
		return &panels.PersistenceError{Op: "update_quotas", PanelID: panelID, Err: err}
	}

	logger := c.logger.With("panel_id", panelID)
	logger.Info("panel quotas updated", "fields", upd.Fields())

	if !upd.Audited() {
		return nil
	}
	entry := panels.LogEntry{
		ID:        uuid.NewString(),
		PanelID:   panelID,
		Action:    panels.ActionQuotaChanged,
		Details:   "fields=" + strings.Join(upd.Fields(), ","),
		CreatedAt: c.clock.Now(),
	}
	if err := c.store.AppendLog(ctx, entry); err != nil {
		return &panels.PersistenceError{Op: string(StepAuditLog), PanelID: panelID, Err: err}
	}
	return nil
}
