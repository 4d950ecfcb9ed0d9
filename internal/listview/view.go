package listview

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"linkoraadmin/internal/models"
)

// View is the serialisable snapshot of a State.
type View[E any] struct {
	Resource      models.Kind       `json:"resource"`
	Mode          Mode              `json:"mode"`
	Records       []E               `json:"records"`
	Filters       map[string]string `json:"filters"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	TotalPages    int               `json:"total_pages"`
	TotalCount    int               `json:"total_count"`
	Selection     []string          `json:"selection"`
	AllSelected   bool              `json:"all_selected"`
	Loading       bool              `json:"loading"`
	Loaded        bool              `json:"loaded"`
	PendingSearch bool              `json:"pending_search"`
	Error         string            `json:"error,omitempty"`
}

func (s *State[E]) Snapshot() View[E] {
	_, pending := s.search.Pending()
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View[E]{
		Resource:      s.kind,
		Mode:          s.mode,
		Records:       slices.Clone(s.visible),
		Filters:       maps.Clone(s.filters),
		Page:          s.page,
		PageSize:      s.pageSize,
		TotalPages:    s.totalPages,
		TotalCount:    s.totalCount,
		Selection:     slices.Clone(s.selection),
		AllSelected:   len(s.visible) > 0 && len(s.selection) == len(s.visible) && s.allVisibleSelectedLocked(),
		Loading:       s.loading,
		Loaded:        s.loaded,
		PendingSearch: pending,
		Error:         s.lastErr,
	}
	if v.Records == nil {
		v.Records = []E{}
	}
	if v.Selection == nil {
		v.Selection = []string{}
	}
	return v
}

// Matches reports whether r satisfies every active predicate in filters.
func Matches(r models.Record, filters map[string]string) bool {
	for field, want := range filters {
		if want == "" || strings.EqualFold(want, "all") {
			continue
		}
		switch field {
		case FieldSearch:
			if !matchesSearch(r.SearchFields(), want) {
				return false
			}
		case FieldFrom:
			from, err := parseDate(want)
			if err == nil && r.CreatedOn().Before(from) {
				return false
			}
		case FieldTo:
			to, err := parseDate(want)
			if err == nil && !r.CreatedOn().Before(to.AddDate(0, 0, 1)) {
				return false
			}
		default:
			if !strings.EqualFold(r.FilterValue(field), want) {
				return false
			}
		}
	}
	return true
}

func matchesSearch(fields []string, q string) bool {
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q, want YYYY-MM-DD", ErrInvalidFilter, v)
	}
	return t, nil
}
