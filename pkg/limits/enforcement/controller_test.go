package enforcement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"resellerhq/warden/internal/panelstest"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/storage"
)

type fixture struct {
	store    *storage.MemoryStore
	client   *panelstest.MockClient
	notifier *panelstest.RecordingNotifier
	ctrl     *Controller
	panelID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	client := panelstest.NewMockClient()
	notifier := &panelstest.RecordingNotifier{}

	id, err := store.CreatePanel(context.Background(), &panels.AdminPanel{
		OwnerID:      1001,
		Username:     "reseller1",
		Password:     "initial-pw",
		MaxUsers:     10,
		MaxTotalTime: 30 * 86400,
	})
	if err != nil {
		t.Fatalf("CreatePanel failed: %v", err)
	}
	client.SetPassword("reseller1", "initial-pw")

	ctrl := NewController(store, client, notifier, Config{Clock: quartz.NewMock(t)})
	return &fixture{store: store, client: client, notifier: notifier, ctrl: ctrl, panelID: id}
}

func (f *fixture) panel(t *testing.T) *panels.AdminPanel {
	t.Helper()
	p, err := f.store.GetPanel(context.Background(), f.panelID)
	if err != nil {
		t.Fatalf("GetPanel failed: %v", err)
	}
	return p
}

func TestDeactivate_DisablesActiveUsers(t *testing.T) {
	f := newFixture(t)
	f.client.SeedUsers("reseller1", 3, panels.UserActive)
	f.client.AddUser(panels.RemoteUser{Username: "already-off", Status: panels.UserDisabled, Admin: "reseller1"})

	res, err := f.ctrl.Deactivate(context.Background(), f.panelID, panels.ReasonTimeLimit)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if !res.OK() {
		t.Fatalf("Expected clean deactivation, got %v", res.Err())
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Errorf("Expected 3 disabled and 0 failed, got %d and %d", res.Succeeded, res.Failed)
	}
	if f.client.StatusCalls() != 3 {
		t.Errorf("Expected 3 status calls, got %d", f.client.StatusCalls())
	}

	users, _ := f.client.ListUsers(context.Background(), "reseller1")
	for _, u := range users {
		if u.Status != panels.UserDisabled {
			t.Errorf("Expected %s disabled, got %s", u.Username, u.Status)
		}
	}

	p := f.panel(t)
	if p.Status != panels.StatusDeactivated {
		t.Errorf("Expected status deactivated, got %s", p.Status)
	}
	if p.DeactivatedReason != panels.ReasonTimeLimit {
		t.Errorf("Expected reason %q, got %q", panels.ReasonTimeLimit, p.DeactivatedReason)
	}
	if p.DeactivatedAt == nil {
		t.Error("Expected deactivated_at to be set")
	}
	if p.OriginalPassword != "initial-pw" {
		t.Errorf("Expected original password captured, got %q", p.OriginalPassword)
	}
	if p.Password == "initial-pw" || len(p.Password) != DefaultPasswordLength {
		t.Errorf("Expected a new %d char password, got %q", DefaultPasswordLength, p.Password)
	}
	if got := f.client.Password("reseller1"); got != p.Password {
		t.Errorf("Expected remote password %q, got %q", p.Password, got)
	}

	logs, _ := f.store.RecentLogs(context.Background(), f.panelID, 10)
	if len(logs) != 1 || logs[0].Action != panels.ActionDeactivated {
		t.Errorf("Expected one deactivation log entry, got %+v", logs)
	}

	if len(f.notifier.Deactivations) != 1 {
		t.Fatalf("Expected 1 deactivation notice, got %d", len(f.notifier.Deactivations))
	}
	if n := f.notifier.Deactivations[0]; n.NewPassword != p.Password || n.Disabled != 3 {
		t.Errorf("Expected notice with new password and 3 disabled, got %+v", n)
	}
}

func TestDeactivate_RotationFailureStillDeactivates(t *testing.T) {
	f := newFixture(t)
	f.client.SeedUsers("reseller1", 2, panels.UserActive)
	f.client.FailRotate(true)

	res, err := f.ctrl.Deactivate(context.Background(), f.panelID, panels.ReasonUsersLimit)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if res.StepErr(StepRotatePassword) == nil {
		t.Error("Expected rotate step error")
	}
	if !panels.IsTransient(res.StepErr(StepRotatePassword)) {
		t.Errorf("Expected transient rotate error, got %v", res.StepErr(StepRotatePassword))
	}
	if res.PasswordRotated {
		t.Error("Expected PasswordRotated false")
	}

	p := f.panel(t)
	if p.OriginalPassword != "initial-pw" {
		t.Errorf("Expected original password captured, got %q", p.OriginalPassword)
	}
	if p.Password != "initial-pw" {
		t.Errorf("Expected current password unchanged, got %q", p.Password)
	}
	if p.Status != panels.StatusDeactivated {
		t.Errorf("Expected status deactivated, got %s", p.Status)
	}
	if res.Succeeded != 2 {
		t.Errorf("Expected 2 users disabled, got %d", res.Succeeded)
	}
	if f.notifier.Deactivations[0].NewPassword != "" {
		t.Error("Expected no new password in notice")
	}
}

func TestDeactivate_IdempotentOriginalPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonTrafficLimit); err != nil {
		t.Fatalf("first Deactivate failed: %v", err)
	}
	first := f.panel(t)

	// a user re-enabled out of band gets disabled again
	f.client.AddUser(panels.RemoteUser{Username: "sneaky", Status: panels.UserActive, Admin: "reseller1"})

	res, err := f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonTrafficLimit)
	if err != nil {
		t.Fatalf("second Deactivate failed: %v", err)
	}
	second := f.panel(t)

	if second.OriginalPassword != "initial-pw" || first.OriginalPassword != second.OriginalPassword {
		t.Errorf("Expected original password to stay %q, got %q", "initial-pw", second.OriginalPassword)
	}
	if res.Steps[0].Step != StepCapturePassword || !res.Steps[0].Skipped {
		t.Errorf("Expected capture step skipped, got %+v", res.Steps[0])
	}
	if res.Succeeded != 1 {
		t.Errorf("Expected 1 user disabled on retry, got %d", res.Succeeded)
	}
	if u, _ := f.client.User("sneaky"); u.Status != panels.UserDisabled {
		t.Errorf("Expected sneaky disabled, got %s", u.Status)
	}
}

func TestDeactivate_PartialUserFailure(t *testing.T) {
	f := newFixture(t)
	f.client.SeedUsers("reseller1", 3, panels.UserActive)
	f.client.FailUser("reseller1-user1")

	res, err := f.ctrl.Deactivate(context.Background(), f.panelID, panels.ReasonManual)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	var partial *panels.PartialEnforcementFailure
	if !errors.As(res.StepErr(StepDisableUsers), &partial) {
		t.Fatalf("Expected PartialEnforcementFailure, got %v", res.StepErr(StepDisableUsers))
	}
	if partial.Succeeded != 2 || partial.Failed != 1 {
		t.Errorf("Expected 2/1, got %d/%d", partial.Succeeded, partial.Failed)
	}
	if f.panel(t).Status != panels.StatusDeactivated {
		t.Error("Expected panel deactivated despite partial failure")
	}
	if n := f.notifier.Deactivations[0]; n.Failed != 1 {
		t.Errorf("Expected notice to carry 1 failure, got %d", n.Failed)
	}
}

func TestDeactivate_ListFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.client.FailList(true)

	res, err := f.ctrl.Deactivate(context.Background(), f.panelID, panels.ReasonManual)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if !panels.IsTransient(res.StepErr(StepDisableUsers)) {
		t.Errorf("Expected transient list error, got %v", res.StepErr(StepDisableUsers))
	}
	if f.panel(t).Status != panels.StatusDeactivated {
		t.Error("Expected panel deactivated")
	}
}

func TestDeactivate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Deactivate(context.Background(), 999, panels.ReasonManual)
	if !errors.Is(err, panels.ErrPanelNotFound) {
		t.Errorf("Expected ErrPanelNotFound, got %v", err)
	}
}

// failingStore fails status writes.
type failingStore struct {
	*storage.MemoryStore
}

func (s failingStore) UpdatePanel(ctx context.Context, id int64, upd *panels.Update) error {
	for _, f := range upd.Fields() {
		if f == "status" {
			return errors.New("disk full")
		}
	}
	return s.MemoryStore.UpdatePanel(ctx, id, upd)
}

func TestDeactivate_PersistStatusFailure(t *testing.T) {
	f := newFixture(t)
	ctrl := NewController(failingStore{f.store}, f.client, f.notifier, Config{Clock: quartz.NewMock(t)})

	res, err := ctrl.Deactivate(context.Background(), f.panelID, panels.ReasonManual)
	if !panels.IsPersistence(err) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
	if res == nil || res.StepErr(StepPersistStatus) == nil {
		t.Error("Expected persist step error in result")
	}
	if len(f.notifier.Deactivations) != 0 {
		t.Error("Expected no notification after persistence failure")
	}
}

func TestReactivate_RestoresPassword(t *testing.T) {
	f := newFixture(t)
	f.client.SeedUsers("reseller1", 2, panels.UserActive)
	ctx := context.Background()

	if _, err := f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonNonPayment); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	res, err := f.ctrl.Reactivate(ctx, f.panelID)
	if err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if !res.PasswordRestored {
		t.Error("Expected password restored")
	}
	if res.Succeeded != 2 {
		t.Errorf("Expected 2 users enabled, got %d", res.Succeeded)
	}

	p := f.panel(t)
	if p.Status != panels.StatusActive {
		t.Errorf("Expected status active, got %s", p.Status)
	}
	if p.DeactivatedAt != nil || p.DeactivatedReason != "" {
		t.Errorf("Expected deactivation fields cleared, got %v %q", p.DeactivatedAt, p.DeactivatedReason)
	}
	if p.Password != "initial-pw" || p.HasOriginalPassword() {
		t.Errorf("Expected password restored and original cleared, got %q / %q", p.Password, p.OriginalPassword)
	}
	if got := f.client.Password("reseller1"); got != "initial-pw" {
		t.Errorf("Expected remote password restored, got %q", got)
	}
	if len(f.notifier.Reactivations) != 1 || !f.notifier.Reactivations[0].PasswordRestored {
		t.Errorf("Expected restored reactivation notice, got %+v", f.notifier.Reactivations)
	}
}

func TestReactivate_WithoutOriginalPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	upd := panels.NewUpdate().SetStatus(panels.StatusDeactivated, panels.ReasonManual, time.Now())
	if err := f.store.UpdatePanel(ctx, f.panelID, upd); err != nil {
		t.Fatalf("UpdatePanel failed: %v", err)
	}

	res, err := f.ctrl.Reactivate(ctx, f.panelID)
	if err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if res.PasswordRestored {
		t.Error("Expected PasswordRestored false")
	}
	if res.Steps[0].Step != StepRestorePassword || !res.Steps[0].Skipped {
		t.Errorf("Expected restore step skipped, got %+v", res.Steps[0])
	}
	if f.client.RotateCalls() != 0 {
		t.Errorf("Expected no rotate calls, got %d", f.client.RotateCalls())
	}
	if f.panel(t).Status != panels.StatusActive {
		t.Error("Expected panel active")
	}
	if f.notifier.Reactivations[0].PasswordRestored {
		t.Error("Expected notice to report password not restored")
	}
}

func TestReactivate_RestoreFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonManual); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	f.client.FailRotate(true)

	res, err := f.ctrl.Reactivate(ctx, f.panelID)
	if err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if res.PasswordRestored {
		t.Error("Expected PasswordRestored false")
	}
	p := f.panel(t)
	if p.OriginalPassword != "initial-pw" {
		t.Errorf("Expected original password kept, got %q", p.OriginalPassword)
	}
	if p.Status != panels.StatusActive {
		t.Errorf("Expected status active, got %s", p.Status)
	}
}

func TestConcurrentDeactivateAndReactivate(t *testing.T) {
	f := newFixture(t)
	f.client.SeedUsers("reseller1", 5, panels.UserActive)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonUsersLimit)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.ctrl.Reactivate(ctx, f.panelID)
		}()
		wg.Wait()

		p := f.panel(t)
		switch p.Status {
		case panels.StatusActive:
			if p.DeactivatedAt != nil || p.DeactivatedReason != "" {
				t.Fatalf("Iteration %d: active panel kept deactivation fields", i)
			}
		case panels.StatusDeactivated:
			if p.DeactivatedAt == nil || p.DeactivatedReason != panels.ReasonUsersLimit {
				t.Fatalf("Iteration %d: deactivated panel missing fields", i)
			}
		default:
			t.Fatalf("Iteration %d: unexpected status %q", i, p.Status)
		}
	}
}

func TestUpdateQuotas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.UpdateQuotas(ctx, f.panelID, panels.NewUpdate().SetMaxUsers(20)); err != nil {
		t.Fatalf("UpdateQuotas failed: %v", err)
	}
	logs, _ := f.store.RecentLogs(ctx, f.panelID, 10)
	if len(logs) != 0 {
		t.Errorf("Expected no audit entry for user quota, got %d", len(logs))
	}

	if err := f.ctrl.UpdateQuotas(ctx, f.panelID, panels.NewUpdate().SetMaxTotalTime(60*86400)); err != nil {
		t.Fatalf("UpdateQuotas failed: %v", err)
	}
	logs, _ = f.store.RecentLogs(ctx, f.panelID, 10)
	if len(logs) != 1 || logs[0].Action != panels.ActionQuotaChanged {
		t.Errorf("Expected one quota_changed entry, got %+v", logs)
	}

	p := f.panel(t)
	if p.MaxUsers != 20 || p.MaxTotalTime != 60*86400 {
		t.Errorf("Expected quotas applied, got %d / %d", p.MaxUsers, p.MaxTotalTime)
	}

	if err := f.ctrl.UpdateQuotas(ctx, f.panelID, panels.NewUpdate()); err == nil {
		t.Error("Expected error for empty update")
	}
	if err := f.ctrl.UpdateQuotas(ctx, 999, panels.NewUpdate().SetMaxUsers(1)); !errors.Is(err, panels.ErrPanelNotFound) {
		t.Errorf("Expected ErrPanelNotFound, got %v", err)
	}
}

func TestDeactivate_WaitsForLock(t *testing.T) {
	f := newFixture(t)

	release, err := f.ctrl.TryLock(context.Background(), f.panelID)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.ctrl.Deactivate(ctx, f.panelID, panels.ReasonManual); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded while locked, got %v", err)
	}
	if f.panel(t).Status != panels.StatusActive {
		t.Error("Expected panel untouched while locked")
	}
}
