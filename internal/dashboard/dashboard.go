package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/cache"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/models"
)

type StatsSource interface {
	Stats(ctx context.Context) (models.DashboardStats, error)
}

type Card struct {
	Title string `json:"title"`
	Value int    `json:"value"`
	Hint  string `json:"hint,omitempty"`
}

type ActivityItem struct {
	models.Activity
	Ago string `json:"ago"`
}

type View struct {
	Cards               []Card         `json:"cards"`
	UserGrowth          []Bar          `json:"user_growth"`
	GenderDistribution  []Segment      `json:"gender_distribution"`
	YearDistribution    []Bar          `json:"year_distribution"`
	CollaborationsByTag []Segment      `json:"collaborations_by_tag"`
	RecentActivity      []ActivityItem `json:"recent_activity"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

func Build(s models.DashboardStats, now time.Time) View {
	v := View{
		Cards: []Card{
			{Title: "Total Users", Value: s.TotalUsers, Hint: fmt.Sprintf("%d active", s.ActiveUsers)},
			{Title: "Pending Approval", Value: s.PendingUsers},
			{Title: "Collaborations", Value: s.TotalCollaborations, Hint: fmt.Sprintf("%d active", s.ActiveCollaborations)},
			{Title: "Pending Reports", Value: s.PendingReports},
		},
		UserGrowth:          Bars(s.UserGrowth),
		GenderDistribution:  Pie(s.GenderDistribution),
		YearDistribution:    Bars(s.YearDistribution),
		CollaborationsByTag: Pie(s.CollaborationsByTag),
		RecentActivity:      make([]ActivityItem, 0, len(s.RecentActivity)),
		GeneratedAt:         now,
	}
	for _, a := range s.RecentActivity {
		v.RecentActivity = append(v.RecentActivity, ActivityItem{Activity: a, Ago: Ago(now, a.Timestamp)})
	}
	return v
}

// Ago renders t relative to now the way the activity feed shows it.
func Ago(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Service serves the dashboard view, caching the backend summary briefly.
type Service struct {
	src    StatsSource
	cache  *cache.TTL[string, models.DashboardStats]
	logger *zap.Logger
	now    func() time.Time
}

func NewService(src StatsSource, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Service{
		src:    src,
		cache:  cache.New[string, models.DashboardStats](ttl, time.Minute, nil),
		logger: logging.OrNop(logger).Named("dashboard"),
		now:    time.Now,
	}
}

func (s *Service) View(ctx context.Context) (View, error) {
	if st, ok := s.cache.Get("stats"); ok {
		return Build(st, s.now()), nil
	}
	st, err := s.src.Stats(ctx)
	if err != nil {
		s.logger.Warn("stats unavailable", zap.Error(err))
		return View{}, err
	}
	s.cache.Set("stats", st)
	return Build(st, s.now()), nil
}

func (s *Service) Close() { s.cache.Close() }
