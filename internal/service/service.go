package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/models"
)

var ErrInvalidDisplayName = errors.New("display name must be 1-80 characters")

type Store interface {
	InsertAudit(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error)
	ListAudit(ctx context.Context, query models.AuditQuery) ([]models.AuditEntry, int, error)
	CountAuditByType(ctx context.Context, query models.AuditQuery) (map[string]int, error)
	EnsureAdminProfile(ctx context.Context, email, displayName string) (models.Admin, error)
	UpdateAdminDisplayName(ctx context.Context, id, displayName string) error
}

// Service holds the console's own persistent concerns: the moderation audit trail and
// admin profiles. Moderated records live in the platform backend, not here.
type Service struct {
	st     Store
	logger *zap.Logger
}

func New(st Store, logger *zap.Logger) *Service {
	return &Service{st: st, logger: logging.OrNop(logger).Named("service")}
}

// ModerationEvent describes one successful moderation action.
type ModerationEvent struct {
	Actor       models.Identity
	ActorName   string
	Kind        models.Kind
	Action      models.Action
	TargetID    string
	TargetLabel string
	From        models.Status
	To          models.Status
	IPAddress   string
	Bulk        bool
}

func (s *Service) RecordModeration(ctx context.Context, ev ModerationEvent) (models.AuditEntry, error) {
	meta := map[string]any{"resource": string(ev.Kind)}
	if ev.From != "" {
		meta["from"] = string(ev.From)
	}
	if ev.To != "" {
		meta["to"] = string(ev.To)
	}
	if ev.Bulk {
		meta["bulk"] = true
	}
	details, _ := json.Marshal(meta)
	name := strings.TrimSpace(ev.ActorName)
	if name == "" {
		name = ev.Actor.DisplayName
	}
	if name == "" {
		name = ev.Actor.Email
	}
	entry := models.AuditEntry{
		AdminID:    ev.Actor.UID,
		AdminEmail: ev.Actor.Email,
		AdminName:  name,
		Action:     titleCase(ev.Kind.Singular()) + " " + titleCase(ev.Action.PastTense()),
		ActionType: models.AuditActionType(ev.Kind, ev.Action),
		Target:     ev.TargetLabel,
		TargetType: ev.Kind.Singular(),
		TargetID:   ev.TargetID,
		Details:    string(details),
		IPAddress:  ev.IPAddress,
	}
	saved, err := s.st.InsertAudit(ctx, entry)
	if err != nil {
		s.logger.Error("audit insert failed",
			zap.String("action_type", entry.ActionType),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
		return models.AuditEntry{}, err
	}
	return saved, nil
}

func (s *Service) ListAudit(ctx context.Context, query models.AuditQuery) ([]models.AuditEntry, int, error) {
	items, total, err := s.st.ListAudit(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		text, severity := buildAuditSummary(items[i])
		items[i].SummaryText = text
		items[i].Severity = severity
	}
	return items, total, nil
}

// AuditSummary counts the headline action types under query's filters.
func (s *Service) AuditSummary(ctx context.Context, query models.AuditQuery) (models.AuditSummary, error) {
	counts, err := s.st.CountAuditByType(ctx, query)
	if err != nil {
		return models.AuditSummary{}, err
	}
	out := models.AuditSummary{
		UserApproved:   counts["user_approved"],
		UserBanned:     counts["user_banned"],
		ReportResolved: counts["report_resolved"],
	}
	for _, n := range counts {
		out.Total += n
	}
	return out, nil
}

func buildAuditSummary(entry models.AuditEntry) (string, string) {
	meta := parseAuditMetadata(entry.Details)
	target := strings.TrimSpace(entry.Target)
	if target == "" {
		target = strings.TrimSpace(entry.TargetID)
	}
	if target == "" {
		target = "(n/a)"
	}
	suffix := "."
	if meta["bulk"] == "true" {
		suffix = " (bulk)."
	}

	switch entry.ActionType {
	case "user_approved":
		return fmt.Sprintf("User profile approved and activated: %s%s", target, suffix), "ok"
	case "user_banned":
		return fmt.Sprintf("User banned: %s%s", target, suffix), "danger"
	case "user_deleted":
		return fmt.Sprintf("User account permanently deleted: %s%s", target, suffix), "danger"
	case "collaboration_approved":
		return fmt.Sprintf("Collaboration approved and made public: %s%s", target, suffix), "ok"
	case "collaboration_banned":
		return fmt.Sprintf("Collaboration banned: %s%s", target, suffix), "danger"
	case "collaboration_deleted":
		return fmt.Sprintf("Collaboration deleted: %s%s", target, suffix), "danger"
	case "report_resolved":
		return fmt.Sprintf("Report against %s resolved%s", target, suffix), "info"
	case "report_banned":
		return fmt.Sprintf("Report against %s escalated to a ban%s", target, suffix), "warning"
	}
	if a := strings.TrimSpace(entry.Action); a != "" {
		return fmt.Sprintf("Audit event %s on %s.", a, target), "info"
	}
	return fmt.Sprintf("Audit event on %s.", target), "info"
}

func parseAuditMetadata(raw string) map[string]string {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return out
	}
	for key, value := range decoded {
		switch typed := value.(type) {
		case string:
			out[key] = typed
		case float64:
			out[key] = fmt.Sprintf("%.0f", typed)
		case bool:
			if typed {
				out[key] = "true"
			} else {
				out[key] = "false"
			}
		default:
			out[key] = fmt.Sprintf("%v", typed)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Profile returns the console profile for a verified identity, creating it on first use.
func (s *Service) Profile(ctx context.Context, ident models.Identity) (models.Admin, error) {
	name := ident.DisplayName
	if name == "" {
		name = strings.SplitN(ident.Email, "@", 2)[0]
	}
	return s.st.EnsureAdminProfile(ctx, ident.Email, name)
}

func (s *Service) SetDisplayName(ctx context.Context, adminID, name string) error {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > 80 {
		return ErrInvalidDisplayName
	}
	return s.st.UpdateAdminDisplayName(ctx, adminID, name)
}

// ParseAuditQuery builds a query from request values. Dates are YYYY-MM-DD; to is inclusive.
func ParseAuditQuery(q, actionType, from, to string, page, pageSize int) (models.AuditQuery, error) {
	out := models.AuditQuery{
		Q:          strings.TrimSpace(q),
		ActionType: strings.TrimSpace(actionType),
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}
	if v := strings.TrimSpace(from); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return models.AuditQuery{}, fmt.Errorf("invalid from date %q", v)
		}
		out.From = t
	}
	if v := strings.TrimSpace(to); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return models.AuditQuery{}, fmt.Errorf("invalid to date %q", v)
		}
		out.To = t.AddDate(0, 0, 1)
	}
	return out, nil
}
