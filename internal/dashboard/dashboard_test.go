package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkoraadmin/internal/models"
)

func TestBarsRelativeToMax(t *testing.T) {
	bars := Bars([]models.Point{{Label: "1st Year", Value: 35}, {Label: "2nd Year", Value: 28}, {Label: "4th Year", Value: 0}})
	require.Len(t, bars, 3)
	assert.InDelta(t, 100, bars[0].Width, 1e-9)
	assert.InDelta(t, 80, bars[1].Width, 1e-9)
	assert.Zero(t, bars[2].Width)

	assert.Zero(t, Bars([]models.Point{{Label: "a", Value: 0}})[0].Width)
}

func TestPieAngles(t *testing.T) {
	segs := Pie([]models.Point{{Label: "Male", Value: 45}, {Label: "Female", Value: 55}})
	require.Len(t, segs, 2)
	assert.InDelta(t, 45, segs[0].Percentage, 1e-9)
	assert.InDelta(t, 0, segs[0].StartAngle, 1e-9)
	assert.InDelta(t, 162, segs[0].EndAngle, 1e-9)
	assert.InDelta(t, 162, segs[1].StartAngle, 1e-9)
	assert.InDelta(t, 360, segs[1].EndAngle, 1e-9)

	assert.Contains(t, segs[0].Path, "A 80 80 0 0 1")
	assert.Contains(t, segs[1].Path, "A 80 80 0 1 1")
	assert.True(t, strings.HasPrefix(segs[0].Path, "M 100 100 L 180 100 "))

	assert.Empty(t, Pie([]models.Point{{Label: "x", Value: 0}}))
}

func TestArcPathFullCircle(t *testing.T) {
	p := ArcPath(0, 360)
	assert.Equal(t, "M 180 100 A 80 80 0 1 1 20 100 A 80 80 0 1 1 180 100 Z", p)
}

func TestAgo(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2 minutes ago", Ago(now, now.Add(-2*time.Minute)))
	assert.Equal(t, "1 hour ago", Ago(now, now.Add(-time.Hour)))
	assert.Equal(t, "just now", Ago(now, now.Add(-10*time.Second)))
	assert.Equal(t, "3 days ago", Ago(now, now.Add(-72*time.Hour)))
}

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) Stats(context.Context) (models.DashboardStats, error) {
	c.calls++
	return models.DashboardStats{TotalUsers: 10, ActiveUsers: 7}, c.err
}

func TestServiceCachesStats(t *testing.T) {
	src := &countingSource{}
	svc := NewService(src, time.Minute, nil)
	t.Cleanup(svc.Close)

	v, err := svc.View(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10, v.Cards[0].Value)
	_, err = svc.View(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

type recordingSaver struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSaver) SetDisplayName(_ context.Context, _ string, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.err
}

func TestProfileDraftsFlushSavesLatestOnly(t *testing.T) {
	saver := &recordingSaver{}
	p := NewProfileDrafts(saver, time.Hour, nil)
	t.Cleanup(p.Stop)

	p.Edit("a1", "S")
	p.Edit("a1", "Sa")
	assert.Equal(t, "Sarah", p.Edit("a1", "Sarah"))
	pending, ok := p.Pending("a1")
	assert.True(t, ok)
	assert.Equal(t, "Sarah", pending)

	saved, err := p.Flush("a1")
	require.NoError(t, err)
	assert.Equal(t, "Sarah", saved)
	assert.Equal(t, []string{"Sarah"}, saver.names)

	_, ok = p.Pending("a1")
	assert.False(t, ok)
}

func TestProfileDraftsDiscardDropsPending(t *testing.T) {
	saver := &recordingSaver{}
	p := NewProfileDrafts(saver, time.Hour, nil)
	p.Edit("a1", "Draft")
	p.Discard("a1")
	p.Stop()
	assert.Empty(t, saver.names)
}

func TestProfileDraftsReportsSaveError(t *testing.T) {
	saver := &recordingSaver{err: errors.New("boom")}
	p := NewProfileDrafts(saver, time.Hour, nil)
	t.Cleanup(p.Stop)
	p.Edit("a1", "Name")
	_, err := p.Flush("a1")
	assert.Error(t, err)
}
