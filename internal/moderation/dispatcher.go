// Package moderation applies approve, ban, resolve and delete actions to records held in
// a list view. Each action is applied locally first, then sent to the backend; a failed
// mutation restores the exact pre-action record and reports an error notification.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/listview"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/notify"
	"linkoraadmin/internal/service"
)

var (
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrUnsupported       = errors.New("action not supported for resource")
	ErrNotLoaded         = errors.New("record not loaded in the current view")
	ErrEmptySelection    = errors.New("no records selected")
)

// Mutator is the backend write surface.
type Mutator interface {
	SetStatus(ctx context.Context, kind models.Kind, id string, status models.Status, action models.Action) error
	Delete(ctx context.Context, kind models.Kind, id string) error
}

type Auditor interface {
	RecordModeration(ctx context.Context, ev service.ModerationEvent) (models.AuditEntry, error)
}

// Actor is the admin performing an action.
type Actor struct {
	Identity models.Identity
	Name     string
	IP       string
}

// Outcome reports one action. A failed backend mutation is an outcome, not an error:
// the view has already been rolled back and the operator notified.
type Outcome struct {
	Resource     models.Kind          `json:"resource"`
	ID           string               `json:"id"`
	Action       models.Action        `json:"action"`
	From         models.Status        `json:"from,omitempty"`
	To           models.Status        `json:"to,omitempty"`
	Succeeded    bool                 `json:"succeeded"`
	RolledBack   bool                 `json:"rolled_back"`
	Error        string               `json:"error,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

type Dispatcher struct {
	api      Mutator
	audit    Auditor
	notifier notify.Sender
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration
}

type Options struct {
	Audit    Auditor
	Notifier notify.Sender
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// Timeout bounds each backend mutation. Mutations are detached from request
	// cancellation so a disconnecting browser cannot leave a half-applied action.
	Timeout time.Duration
}

func New(api Mutator, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		api:      api,
		audit:    opts.Audit,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logging.OrNop(opts.Logger).Named("moderation"),
		timeout:  opts.Timeout,
	}
}

// Apply runs one action against record id of kind in sess.
func (d *Dispatcher) Apply(ctx context.Context, sess *listview.Session, kind models.Kind, id string, action models.Action, actor Actor) (Outcome, error) {
	switch kind {
	case models.KindUsers:
		return apply(ctx, d, sess.Users, id, action, actor, false)
	case models.KindCollaborations:
		return apply(ctx, d, sess.Collaborations, id, action, actor, false)
	case models.KindReports:
		return apply(ctx, d, sess.Reports, id, action, actor, false)
	}
	return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

// Bulk applies action to every selected record concurrently. Records whose current
// status does not allow the action are reported without a backend call.
func (d *Dispatcher) Bulk(ctx context.Context, sess *listview.Session, kind models.Kind, action models.Action, actor Actor) ([]Outcome, error) {
	if action == models.ActionDelete {
		return nil, fmt.Errorf("%w: bulk %s", ErrUnsupported, action)
	}
	switch kind {
	case models.KindUsers:
		return bulk(ctx, d, sess.Users, action, actor)
	case models.KindCollaborations:
		return bulk(ctx, d, sess.Collaborations, action, actor)
	case models.KindReports:
		return bulk(ctx, d, sess.Reports, action, actor)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

func bulk[E models.Entity[E]](ctx context.Context, d *Dispatcher, st *listview.State[E], action models.Action, actor Actor) ([]Outcome, error) {
	ids := st.Selection()
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}
	out := make([]Outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := apply(ctx, d, st, id, action, actor, true)
			if err != nil {
				o = Outcome{Resource: st.Kind(), ID: id, Action: action, Error: err.Error()}
			}
			out[i] = o
		}()
	}
	wg.Wait()
	return out, nil
}

func apply[E models.Entity[E]](ctx context.Context, d *Dispatcher, st *listview.State[E], id string, action models.Action, actor Actor, isBulk bool) (Outcome, error) {
	kind := st.Kind()
	before, index, ok := st.Get(id)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s %s", ErrNotLoaded, kind.Singular(), id)
	}
	cp := st.Checkpoint()
	out := Outcome{Resource: kind, ID: id, Action: action, From: before.CurrentStatus()}

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	label := before.Label()
	if label == "" {
		label = id
	}

	var err error
	if action == models.ActionDelete {
		if !models.CanDelete(kind) {
			return Outcome{}, fmt.Errorf("%w: delete %s", ErrUnsupported, kind)
		}
		out.From = ""
		st.Remove(id)
		err = d.api.Delete(mctx, kind, id)
	} else {
		next, terr := models.NextStatus(kind, before.CurrentStatus(), action)
		if terr != nil {
			return Outcome{}, terr
		}
		out.To = next
		st.Replace(before.WithStatus(next))
		err = d.api.SetStatus(mctx, kind, id, next, action)
	}

	if err != nil {
		st.Restore(before, index, cp)
		out.RolledBack = true
		out.Error = err.Error()
		d.metrics.ObserveModeration(string(kind), string(action), "rolled_back")
		d.logger.Warn("moderation action rolled back",
			zap.String("resource", string(kind)),
			zap.String("id", id),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		n := d.notify(ctx, actor, models.NotifyError, fmt.Sprintf("Failed to %s %s %s", action, kind.Singular(), label), kind, id)
		out.Notification = n
		return out, nil
	}

	st.Deselect(id)
	out.Succeeded = true
	d.metrics.ObserveModeration(string(kind), string(action), "succeeded")
	if d.audit != nil {
		_, aerr := d.audit.RecordModeration(context.WithoutCancel(ctx), service.ModerationEvent{
			Actor:       actor.Identity,
			ActorName:   actor.Name,
			Kind:        kind,
			Action:      action,
			TargetID:    id,
			TargetLabel: before.Label(),
			From:        out.From,
			To:          out.To,
			IPAddress:   actor.IP,
			Bulk:        isBulk,
		})
		if aerr != nil {
			d.logger.Error("audit record failed", zap.String("id", id), zap.Error(aerr))
		}
	}
	out.Notification = d.notify(ctx, actor, models.NotifySuccess, fmt.Sprintf("%s %s %s", titleCase(kind.Singular()), label, action.PastTense()), kind, id)
	return out, nil
}

func (d *Dispatcher) notify(ctx context.Context, actor Actor, kind models.NotificationKind, msg string, resource models.Kind, id string) *models.Notification {
	if d.notifier == nil {
		return nil
	}
	n := d.notifier.Notify(context.WithoutCancel(ctx), models.Notification{
		AdminID:  actor.Identity.UID,
		Kind:     kind,
		Message:  msg,
		Resource: string(resource),
		TargetID: id,
	})
	return &n
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
