package service

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"linkoraadmin/internal/db"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	sqdb, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "console.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.Migrate(sqdb, db.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(store.New(sqdb, db.DriverSQLite), nil)
}

func TestRecordModerationAndSummaries(t *testing.T) {
	svc := newTestService(t)
	ctx := t.Context()
	actor := models.Identity{UID: "uid-1", Email: "sarah@linkora.app", DisplayName: "Sarah Chen"}

	events := []ModerationEvent{
		{Actor: actor, Kind: models.KindUsers, Action: models.ActionApprove, TargetID: "3", TargetLabel: "Alex Johnson", From: models.StatusPending, To: models.StatusActive, IPAddress: "10.0.0.1"},
		{Actor: actor, Kind: models.KindUsers, Action: models.ActionBan, TargetID: "4", TargetLabel: "Sam Rodriguez", From: models.StatusActive, To: models.StatusBanned, Bulk: true},
		{Actor: actor, Kind: models.KindReports, Action: models.ActionResolve, TargetID: "7", TargetLabel: "Riley Garcia", From: models.StatusPending, To: models.StatusResolved},
	}
	for _, ev := range events {
		if _, err := svc.RecordModeration(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	items, total, err := svc.ListAudit(ctx, models.AuditQuery{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 entries, got %d", total)
	}
	byType := map[string]models.AuditEntry{}
	for _, e := range items {
		byType[e.ActionType] = e
	}
	approved := byType["user_approved"]
	if approved.Action != "User Approved" || approved.AdminName != "Sarah Chen" || approved.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected approval entry: %+v", approved)
	}
	if approved.Severity != "ok" || !strings.Contains(approved.SummaryText, "Alex Johnson") {
		t.Fatalf("unexpected summary: %q %q", approved.SummaryText, approved.Severity)
	}
	if got := byType["user_banned"].SummaryText; !strings.HasSuffix(got, "(bulk).") {
		t.Fatalf("expected bulk marker, got %q", got)
	}

	sum, err := svc.AuditSummary(ctx, models.AuditQuery{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := models.AuditSummary{UserApproved: 1, UserBanned: 1, ReportResolved: 1, Total: 3}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
}

func TestProfileAndDisplayName(t *testing.T) {
	svc := newTestService(t)
	ctx := t.Context()
	a, err := svc.Profile(ctx, models.Identity{UID: "x", Email: "ops@linkora.app"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if a.DisplayName != "ops" {
		t.Fatalf("expected display name from email, got %q", a.DisplayName)
	}
	if err := svc.SetDisplayName(ctx, a.ID, "  "); !errors.Is(err, ErrInvalidDisplayName) {
		t.Fatalf("expected ErrInvalidDisplayName, got %v", err)
	}
	if err := svc.SetDisplayName(ctx, a.ID, "Ops Team"); err != nil {
		t.Fatalf("set display name: %v", err)
	}
	a, err = svc.Profile(ctx, models.Identity{Email: "ops@linkora.app"})
	if err != nil {
		t.Fatalf("profile again: %v", err)
	}
	if a.DisplayName != "Ops Team" {
		t.Fatalf("display name not persisted: %q", a.DisplayName)
	}
	if err := svc.SetDisplayName(ctx, "missing", "Name"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseAuditQuery(t *testing.T) {
	q, err := ParseAuditQuery(" sam ", "user_banned", "2024-01-16", "2024-01-16", 2, 25)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Q != "sam" || q.Offset != 25 || q.Limit != 25 {
		t.Fatalf("unexpected query: %+v", q)
	}
	if !q.To.Equal(time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected inclusive to date, got %v", q.To)
	}
	if _, err := ParseAuditQuery("", "", "16/01/2024", "", 1, 25); err == nil {
		t.Fatal("expected invalid date error")
	}
}
