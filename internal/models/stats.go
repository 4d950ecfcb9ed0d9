package models

import "time"

// Point is one labelled value of a pre-aggregated series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Activity struct {
	ID        ID        `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardStats mirrors the backend /api/stats payload.
type DashboardStats struct {
	TotalUsers           int        `json:"totalUsers"`
	ActiveUsers          int        `json:"activeUsers"`
	PendingUsers         int        `json:"pendingUsers"`
	BannedUsers          int        `json:"bannedUsers"`
	TotalCollaborations  int        `json:"totalCollaborations"`
	ActiveCollaborations int        `json:"activeCollaborations"`
	PendingReports       int        `json:"pendingReports"`
	UserGrowth           []Point    `json:"userGrowth"`
	GenderDistribution   []Point    `json:"genderDistribution"`
	YearDistribution     []Point    `json:"yearDistribution"`
	CollaborationsByTag  []Point    `json:"collaborationsByTag"`
	RecentActivity       []Activity `json:"recentActivity"`
}
