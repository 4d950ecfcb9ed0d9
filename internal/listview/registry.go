package listview

import (
	"context"
	"time"

	"linkoraadmin/internal/backend"
	"linkoraadmin/internal/cache"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/models"
)

// Controller is the type-erased surface of a State used by HTTP handlers.
type Controller interface {
	Kind() models.Kind
	Mode() Mode
	Loaded() bool
	Load(ctx context.Context) error
	SetFilter(ctx context.Context, field, value string) error
	FlushSearch() bool
	ChangePage(ctx context.Context, n int) (bool, error)
	ToggleSelect(id string) error
	ToggleSelectAll()
	Selection() []string
	Render() any
	Close()
}

// Session groups the three resource views of one signed-in admin.
type Session struct {
	Users          *State[models.User]
	Collaborations *State[models.Collaboration]
	Reports        *State[models.Report]
}

func NewSession(api backend.API, opts Options) *Session {
	return &Session{
		Users:          New[models.User](models.KindUsers, backend.Users(api), opts),
		Collaborations: New[models.Collaboration](models.KindCollaborations, backend.Collaborations(api), opts),
		Reports:        New[models.Report](models.KindReports, backend.Reports(api), opts),
	}
}

func (s *Session) View(kind models.Kind) (Controller, bool) {
	switch kind {
	case models.KindUsers:
		return s.Users, true
	case models.KindCollaborations:
		return s.Collaborations, true
	case models.KindReports:
		return s.Reports, true
	}
	return nil, false
}

func (s *Session) Close() {
	s.Users.Close()
	s.Collaborations.Close()
	s.Reports.Close()
}

// Registry owns per-session views. Idle sessions expire and are closed, which cancels
// their in-flight fetches and debounce timers.
type Registry struct {
	api     backend.API
	opts    Options
	views   *cache.TTL[string, *Session]
	metrics *metrics.Metrics
}

func NewRegistry(api backend.API, opts Options, idle time.Duration, m *metrics.Metrics) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	r := &Registry{api: api, opts: opts, metrics: m}
	r.views = cache.New[string, *Session](idle, time.Minute, func(_ string, s *Session) {
		s.Close()
		m.ViewsChanged(-1)
	})
	return r
}

// Session returns the live views for key, creating them on first use.
func (r *Registry) Session(key string) *Session {
	s, existed := r.views.GetOrCreate(key, func() *Session { return NewSession(r.api, r.opts) })
	if !existed {
		r.metrics.ViewsChanged(1)
	}
	return s
}

// Drop closes and forgets the views for key. Used on logout.
func (r *Registry) Drop(key string) {
	r.views.Delete(key)
}

func (r *Registry) Len() int { return r.views.Len() }

func (r *Registry) Close() {
	r.views.Clear()
	r.views.Close()
}
