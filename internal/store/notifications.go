package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"linkoraadmin/internal/models"
)

func (s *Store) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO notifications(id,admin_id,kind,message,resource,target_id,created_at) VALUES(?,?,?,?,?,?,?)`),
		n.ID, n.AdminID, string(n.Kind), n.Message, n.Resource, n.TargetID, n.CreatedAt,
	)
	return n, err
}

func (s *Store) ListNotifications(ctx context.Context, adminID string, includeDismissed bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,admin_id,kind,message,resource,target_id,created_at,dismissed_at FROM notifications WHERE admin_id=?`
	if !includeDismissed {
		query += ` AND dismissed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), adminID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		var kind string
		var dismissed sql.NullTime
		if err := rows.Scan(&n.ID, &n.AdminID, &kind, &n.Message, &n.Resource, &n.TargetID, &n.CreatedAt, &dismissed); err != nil {
			return nil, err
		}
		n.Kind = models.NotificationKind(kind)
		if dismissed.Valid {
			t := dismissed.Time
			n.DismissedAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) DismissNotification(ctx context.Context, adminID, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE notifications SET dismissed_at=? WHERE id=? AND admin_id=? AND dismissed_at IS NULL`),
		time.Now().UTC(), id, adminID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
