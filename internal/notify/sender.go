// Package notify delivers user-visible notifications: persisted per admin, listed and
// dismissed over HTTP, and pushed live to open websocket streams.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/models"
)

type Store interface {
	InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	ListNotifications(ctx context.Context, adminID string, includeDismissed bool, limit int) ([]models.Notification, error)
	DismissNotification(ctx context.Context, adminID, id string) error
}

// Sender is what the moderation dispatcher needs.
type Sender interface {
	Notify(ctx context.Context, n models.Notification) models.Notification
}

type Center struct {
	store  Store
	hub    *Hub
	logger *zap.Logger
	now    func() time.Time
}

// NewCenter accepts a nil store (notifications are then only pushed live) and a nil hub.
func NewCenter(st Store, hub *Hub, logger *zap.Logger) *Center {
	return &Center{store: st, hub: hub, logger: logging.OrNop(logger).Named("notify"), now: time.Now}
}

// Notify persists n and pushes it to the admin's streams. Persistence failures are
// logged; the live push still happens so the operator sees the outcome.
func (c *Center) Notify(ctx context.Context, n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = c.now().UTC()
	}
	if c.store != nil {
		saved, err := c.store.InsertNotification(ctx, n)
		if err != nil {
			c.logger.Error("persist notification failed", zap.String("admin_id", n.AdminID), zap.Error(err))
		} else {
			n = saved
		}
	}
	if c.hub != nil {
		c.hub.SendToAdmin(n.AdminID, Event{Op: OpNotification, Data: n})
	}
	c.logger.Debug("notification sent",
		zap.String("admin_id", n.AdminID),
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
	)
	return n
}

func (c *Center) List(ctx context.Context, adminID string, includeDismissed bool, limit int) ([]models.Notification, error) {
	if c.store == nil {
		return []models.Notification{}, nil
	}
	return c.store.ListNotifications(ctx, adminID, includeDismissed, limit)
}

func (c *Center) Dismiss(ctx context.Context, adminID, id string) error {
	if c.store != nil {
		if err := c.store.DismissNotification(ctx, adminID, id); err != nil {
			return err
		}
	}
	if c.hub != nil {
		c.hub.SendToAdmin(adminID, Event{Op: OpDismissed, Data: map[string]string{"id": id}})
	}
	return nil
}

func (c *Center) Hub() *Hub { return c.hub }
