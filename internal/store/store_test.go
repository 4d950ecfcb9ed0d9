package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"linkoraadmin/internal/db"
	"linkoraadmin/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqdb, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "console.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.Migrate(sqdb, db.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(sqdb, db.DriverSQLite)
}

func TestEnsureAdminCreatesThenUpdatesHash(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	if err := st.EnsureAdmin(ctx, " Admin@Linkora.App ", "Root", "hash-1"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	a, err := st.GetAdminByEmail(ctx, "admin@linkora.app")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if a.PasswordHash != "hash-1" || a.DisplayName != "Root" {
		t.Fatalf("unexpected admin row: %+v", a)
	}
	if err := st.EnsureAdmin(ctx, "admin@linkora.app", "Ignored", "hash-2"); err != nil {
		t.Fatalf("ensure admin again: %v", err)
	}
	a, err = st.GetAdminByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if a.PasswordHash != "hash-2" {
		t.Fatalf("expected hash to be reset, got %q", a.PasswordHash)
	}
}

func TestCreateAdminConflict(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.CreateAdmin(t.Context(), "a@b.c", "A", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateAdmin(t.Context(), "A@B.C", "A", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestEnsureAdminProfileIsStable(t *testing.T) {
	st := newTestStore(t)
	first, err := st.EnsureAdminProfile(t.Context(), "ops@linkora.app", "Ops")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := st.EnsureAdminProfile(t.Context(), "ops@linkora.app", "Other")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != second.ID || second.DisplayName != "Ops" {
		t.Fatalf("expected the same profile, got %+v and %+v", first, second)
	}
}

func TestUpdateAdminDisplayNameMissing(t *testing.T) {
	st := newTestStore(t)
	if err := st.UpdateAdminDisplayName(t.Context(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAuditFiltersAndCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	entries := []models.AuditEntry{
		{AdminName: "Sarah Chen", Action: "Approved user registration", ActionType: "user_approved", Target: "Alex Johnson", TargetType: "user", CreatedAt: base},
		{AdminName: "Sarah Chen", Action: "Banned user", ActionType: "user_banned", Target: "Sam Rodriguez", TargetType: "user", CreatedAt: base.Add(time.Minute)},
		{AdminName: "Mike Ross", Action: "Resolved report", ActionType: "report_resolved", Target: "Taylor Smith", TargetType: "report", CreatedAt: base.Add(2 * time.Minute)},
		{AdminName: "Mike Ross", Action: "Approved user registration", ActionType: "user_approved", Target: "Jordan Lee", TargetType: "user", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if _, err := st.InsertAudit(ctx, e); err != nil {
			t.Fatalf("insert audit: %v", err)
		}
	}

	items, total, err := st.ListAudit(ctx, models.AuditQuery{Limit: 10})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if total != 4 || len(items) != 4 {
		t.Fatalf("expected 4 entries, got total=%d len=%d", total, len(items))
	}
	if items[0].Target != "Jordan Lee" {
		t.Fatalf("expected newest first, got %q", items[0].Target)
	}

	items, total, err = st.ListAudit(ctx, models.AuditQuery{Q: "sarah", Limit: 10})
	if err != nil {
		t.Fatalf("search audit: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 entries for sarah, got total=%d", total)
	}

	_, total, err = st.ListAudit(ctx, models.AuditQuery{ActionType: "user_approved", Limit: 1})
	if err != nil {
		t.Fatalf("filter audit: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 approvals, got %d", total)
	}

	counts, err := st.CountAuditByType(ctx, models.AuditQuery{})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if counts["user_approved"] != 2 || counts["user_banned"] != 1 || counts["report_resolved"] != 1 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestNotificationsDismiss(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	n, err := st.InsertNotification(ctx, models.Notification{AdminID: "admin-1", Kind: models.NotifyError, Message: "Failed to approve user"})
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	items, err := st.ListNotifications(ctx, "admin-1", false, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(items) != 1 || items[0].Kind != models.NotifyError {
		t.Fatalf("unexpected notifications: %+v", items)
	}
	if err := st.DismissNotification(ctx, "admin-2", n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other admin dismiss to fail with ErrNotFound, got %v", err)
	}
	if err := st.DismissNotification(ctx, "admin-1", n.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	items, err = st.ListNotifications(ctx, "admin-1", false, 10)
	if err != nil {
		t.Fatalf("list after dismiss: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected dismissed notification to be hidden, got %d", len(items))
	}
	items, err = st.ListNotifications(ctx, "admin-1", true, 10)
	if err != nil {
		t.Fatalf("list including dismissed: %v", err)
	}
	if len(items) != 1 || items[0].DismissedAt == nil {
		t.Fatalf("expected dismissed notification with timestamp, got %+v", items)
	}
}
