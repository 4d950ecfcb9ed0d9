// Package backend talks to the Linkora platform API that owns users, collaborations and
// reports. The console never creates those records; it lists them and moves their status.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"linkoraadmin/internal/models"
)

var (
	// ErrMutationRejected means the backend answered a status change or delete with a
	// non-2xx status or success=false.
	ErrMutationRejected = errors.New("backend rejected mutation")
	// ErrUnavailable covers transport failures and 5xx answers.
	ErrUnavailable = errors.New("backend unavailable")
)

// ListQuery carries the list endpoint's query parameters. Zero values are omitted.
type ListQuery struct {
	Search   string
	Status   string
	Gender   string
	Year     string
	Severity string
	From     string
	To       string
	Page     int
	Limit    int
}

func (q ListQuery) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("search", q.Search)
	set("status", q.Status)
	set("gender", q.Gender)
	set("year", q.Year)
	set("severity", q.Severity)
	set("from", q.From)
	set("to", q.To)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Key is a stable cache key for the query; url.Values encodes in sorted key order.
func (q ListQuery) Key() string {
	return q.Values().Encode()
}

// ListPage is one decoded list response.
type ListPage[E any] struct {
	Items       []E
	TotalCount  int
	CurrentPage int
	TotalPages  int
}

type listEnvelope[E any] struct {
	Success     bool   `json:"success"`
	Data        []E    `json:"data"`
	TotalCount  int    `json:"totalCount"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	Message     string `json:"message,omitempty"`
}

type mutationEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// API is the raw backend surface. ListRaw returns the undecoded list envelope so
// caching layers can store bytes without knowing the record type.
type API interface {
	ListRaw(ctx context.Context, kind models.Kind, q ListQuery) ([]byte, error)
	SetStatus(ctx context.Context, kind models.Kind, id string, status models.Status, action models.Action) error
	Delete(ctx context.Context, kind models.Kind, id string) error
	Stats(ctx context.Context) (models.DashboardStats, error)
	Ping(ctx context.Context) error
}

// DecodeList parses a list envelope. A missing data array decodes as an empty page.
func DecodeList[E any](raw []byte) (ListPage[E], error) {
	var env listEnvelope[E]
	if err := json.Unmarshal(raw, &env); err != nil {
		return ListPage[E]{}, fmt.Errorf("decode list: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "success=false"
		}
		return ListPage[E]{}, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	items := env.Data
	if items == nil {
		items = []E{}
	}
	page := ListPage[E]{
		Items:       items,
		TotalCount:  env.TotalCount,
		CurrentPage: env.CurrentPage,
		TotalPages:  env.TotalPages,
	}
	if page.TotalCount == 0 && len(items) > 0 {
		page.TotalCount = len(items)
	}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	return page, nil
}

func encodeList[E any](page ListPage[E]) []byte {
	data := page.Items
	if data == nil {
		data = []E{}
	}
	b, _ := json.Marshal(listEnvelope[E]{
		Success:     true,
		Data:        data,
		TotalCount:  page.TotalCount,
		CurrentPage: page.CurrentPage,
		TotalPages:  page.TotalPages,
	})
	return b
}

// Resource binds an API to one record type and satisfies the list view's fetcher.
type Resource[E any] struct {
	api  API
	kind models.Kind
}

func NewResource[E any](api API, kind models.Kind) Resource[E] {
	return Resource[E]{api: api, kind: kind}
}

func (r Resource[E]) Kind() models.Kind { return r.kind }

func (r Resource[E]) List(ctx context.Context, q ListQuery) (ListPage[E], error) {
	raw, err := r.api.ListRaw(ctx, r.kind, q)
	if err != nil {
		return ListPage[E]{}, err
	}
	return DecodeList[E](raw)
}

// Users, Collaborations and Reports are the three typed resources.
func Users(api API) Resource[models.User] { return NewResource[models.User](api, models.KindUsers) }

func Collaborations(api API) Resource[models.Collaboration] {
	return NewResource[models.Collaboration](api, models.KindCollaborations)
}

func Reports(api API) Resource[models.Report] {
	return NewResource[models.Report](api, models.KindReports)
}
