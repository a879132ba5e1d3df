package monitor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"resellerhq/warden/pkg/limits/ratelimit"
	"resellerhq/warden/pkg/marzban"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/logging"
)

// CleanupExpired deletes expired delegated users of every Active panel and
// returns the number deleted. Failures are logged and never stop the pass.
func (s *Sweeper) CleanupExpired(ctx context.Context) int {
	active, err := s.store.ActivePanels(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "cleanup: failed to load active panels", "error", err)
		return 0
	}

	total := 0
	for i := range active {
		if i > 0 {
			if err := ratelimit.Pause(ctx, s.clock, s.panelDelay/2); err != nil {
				break
			}
		}
		total += s.cleanupPanel(logging.WithPanelID(ctx, active[i].ID), &active[i])
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "expired users removed", "count", total)
	}
	return total
}

func (s *Sweeper) cleanupPanel(ctx context.Context, p *panels.AdminPanel) int {
	users, err := s.client.ListUsers(ctx, p.Username)
	if err != nil {
		s.logger.WarnContext(ctx, "cleanup: failed to list users", "error", err)
		return 0
	}

	expired := marzban.ExpiredUsers(users, s.clock.Now())
	deleted, failed := 0, 0
	for _, u := range expired {
		if err := s.throttle.Wait(ctx); err != nil {
			break
		}
		if err := s.client.DeleteUser(ctx, u.Username); err != nil {
			failed++
			s.logger.WarnContext(ctx, "cleanup: failed to delete user", "user", u.Username, "error", err)
			continue
		}
		deleted++
		s.logger.DebugContext(ctx, "expired user removed", "user", u.Username)
	}

	if deleted+failed == 0 {
		return 0
	}
	entry := panels.LogEntry{
		ID:        uuid.NewString(),
		PanelID:   p.ID,
		Action:    panels.ActionExpiredCleanup,
		Details:   fmt.Sprintf("deleted=%d failed=%d", deleted, failed),
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "cleanup: failed to append log", "error", err)
	}
	return deleted
}
