package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkoraadmin/internal/models"
)

func (s *Store) InsertAudit(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO audit_log(id,admin_id,admin_email,admin_name,action,action_type,target,target_type,target_id,details,ip_address,created_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`),
		e.ID, e.AdminID, e.AdminEmail, e.AdminName, e.Action, e.ActionType, e.Target, e.TargetType, e.TargetID, e.Details, e.IPAddress, e.CreatedAt,
	)
	return e, err
}

func auditWhere(query models.AuditQuery) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 8)
	if q := strings.ToLower(strings.TrimSpace(query.Q)); q != "" {
		like := "%" + q + "%"
		clauses = append(clauses, `(LOWER(action) LIKE ? OR LOWER(target) LIKE ? OR LOWER(admin_name) LIKE ? OR LOWER(admin_email) LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if a := strings.TrimSpace(query.ActionType); a != "" && a != "all" {
		clauses = append(clauses, `action_type=?`)
		args = append(args, a)
	}
	if !query.From.IsZero() {
		clauses = append(clauses, `created_at>=?`)
		args = append(args, query.From.UTC())
	}
	if !query.To.IsZero() {
		clauses = append(clauses, `created_at<?`)
		args = append(args, query.To.UTC())
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListAudit returns one page of entries, newest first, and the total match count.
func (s *Store) ListAudit(ctx context.Context, query models.AuditQuery) ([]models.AuditEntry, int, error) {
	where, args := auditWhere(query)
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM audit_log`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 25
	}
	pageArgs := append(append([]any(nil), args...), limit, query.Offset)
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id,admin_id,admin_email,admin_name,action,action_type,target,target_type,target_id,details,ip_address,created_at FROM audit_log`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		pageArgs...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.AdminID, &e.AdminEmail, &e.AdminName, &e.Action, &e.ActionType, &e.Target, &e.TargetType, &e.TargetID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CountAuditByType counts entries per action_type under the same filters as ListAudit.
func (s *Store) CountAuditByType(ctx context.Context, query models.AuditQuery) (map[string]int, error) {
	where, args := auditWhere(query)
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT action_type, COUNT(1) FROM audit_log`+where+` GROUP BY action_type`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var actionType string
		var n int
		if err := rows.Scan(&actionType, &n); err != nil {
			return nil, err
		}
		out[actionType] = n
	}
	return out, rows.Err()
}
