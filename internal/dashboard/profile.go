package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/debounce"
	"linkoraadmin/internal/logging"
)

type NameSaver interface {
	SetDisplayName(ctx context.Context, adminID, name string) error
}

// ProfileDrafts holds one debounced display-name edit per admin. Each keystroke is echoed
// locally and only saved once typing pauses, on blur (Flush), never after Stop.
type ProfileDrafts struct {
	mu      sync.Mutex
	saver   NameSaver
	quiet   time.Duration
	timeout time.Duration
	logger  *zap.Logger
	drafts  map[string]*draft
}

type draft struct {
	d *debounce.Debouncer[string]

	mu      sync.Mutex
	saved   string
	lastErr error
}

func NewProfileDrafts(saver NameSaver, quiet time.Duration, logger *zap.Logger) *ProfileDrafts {
	return &ProfileDrafts{
		saver:   saver,
		quiet:   quiet,
		timeout: 5 * time.Second,
		logger:  logging.OrNop(logger).Named("profile"),
		drafts:  map[string]*draft{},
	}
}

func (p *ProfileDrafts) get(adminID string) *draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dr, ok := p.drafts[adminID]; ok {
		return dr
	}
	dr := &draft{}
	dr.d = debounce.New(p.quiet, func(name string) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		err := p.saver.SetDisplayName(ctx, adminID, name)
		dr.mu.Lock()
		dr.lastErr = err
		if err == nil {
			dr.saved = name
		}
		dr.mu.Unlock()
		if err != nil {
			p.logger.Warn("display name save failed", zap.String("admin_id", adminID), zap.Error(err))
		}
	})
	p.drafts[adminID] = dr
	return dr
}

// Edit records name as the pending value and returns the local echo.
func (p *ProfileDrafts) Edit(adminID, name string) string {
	p.get(adminID).d.Push(name)
	return name
}

// Pending returns the unsaved value for adminID, if any.
func (p *ProfileDrafts) Pending(adminID string) (string, bool) {
	p.mu.Lock()
	dr, ok := p.drafts[adminID]
	p.mu.Unlock()
	if !ok {
		return "", false
	}
	return dr.d.Pending()
}

// Flush saves any pending value now and reports the outcome of the latest save.
func (p *ProfileDrafts) Flush(adminID string) (saved string, err error) {
	dr := p.get(adminID)
	dr.d.Flush()
	dr.mu.Lock()
	defer dr.mu.Unlock()
	err, dr.lastErr = dr.lastErr, nil
	return dr.saved, err
}

// Discard drops adminID's draft without saving it.
func (p *ProfileDrafts) Discard(adminID string) {
	p.mu.Lock()
	dr, ok := p.drafts[adminID]
	delete(p.drafts, adminID)
	p.mu.Unlock()
	if ok {
		dr.d.Stop()
	}
}

func (p *ProfileDrafts) Stop() {
	p.mu.Lock()
	drafts := p.drafts
	p.drafts = map[string]*draft{}
	p.mu.Unlock()
	for _, dr := range drafts {
		dr.d.Stop()
	}
}
