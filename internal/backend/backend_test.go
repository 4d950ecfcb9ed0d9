package backend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkoraadmin/internal/models"
)

func TestListQueryOmitsZeroValues(t *testing.T) {
	q := ListQuery{Search: "alex", Status: "pending", Page: 2, Limit: 10}
	assert.Equal(t, "limit=10&page=2&search=alex&status=pending", q.Key())
	assert.Equal(t, "", ListQuery{}.Key())
}

func TestHTTPClientListUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users", r.URL.Path)
		assert.Equal(t, "alex", r.URL.Query().Get("search"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":3,"name":"Alex Kim","email":"alex@example.com","status":"pending","joinDate":"2024-03-01"}],"totalCount":1,"currentPage":1,"totalPages":1}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil, nil)
	page, err := Users(c).List(t.Context(), ListQuery{Search: "alex", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	u := page.Items[0]
	assert.Equal(t, models.ID("3"), u.ID)
	assert.Equal(t, models.StatusPending, u.Status)
	assert.Equal(t, 2024, u.JoinDate.Year())
	assert.Equal(t, 1, page.TotalPages)
}

func TestHTTPClientListFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := Reports(NewHTTPClient(srv.URL, time.Second, nil, nil)).List(t.Context(), ListQuery{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestHTTPClientSetStatusSendsPatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/users/3/status", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, "approve", body["action"])
		_, _ = io.WriteString(w, `{"success":true,"message":"ok"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil, nil)
	require.NoError(t, c.SetStatus(t.Context(), models.KindUsers, "3", models.StatusActive, models.ActionApprove))
}

func TestHTTPClientMutationRejections(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"client error", http.StatusConflict, `{"success":false,"message":"already banned"}`},
		{"success false", http.StatusOK, `{"success":false,"message":"nope"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			err := NewHTTPClient(srv.URL, time.Second, nil, nil).Delete(t.Context(), models.KindCollaborations, "9")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMutationRejected))
		})
	}
}

func TestHTTPClientStatsAcceptsWrappedAndBare(t *testing.T) {
	for _, body := range []string{
		`{"totalUsers":12,"pendingReports":2}`,
		`{"success":true,"data":{"totalUsers":12,"pendingReports":2}}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		stats, err := NewHTTPClient(srv.URL, time.Second, nil, nil).Stats(t.Context())
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, 12, stats.TotalUsers)
		assert.Equal(t, 2, stats.PendingReports)
	}
}

func TestNoopClientReturnsEmptyPages(t *testing.T) {
	page, err := Collaborations(NoopClient{}).List(t.Context(), ListQuery{Page: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)
	assert.NoError(t, NoopClient{}.SetStatus(t.Context(), models.KindUsers, "1", models.StatusBanned, models.ActionBan))
}

func TestCachedAPIInvalidatesOnMutation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			calls.Add(1)
			_, _ = io.WriteString(w, `{"success":true,"data":[],"totalCount":0,"currentPage":1,"totalPages":1}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	mem := NewMemoryCache(time.Minute)
	defer mem.Close()
	api := NewCachedAPI(NewHTTPClient(srv.URL, time.Second, nil, nil), mem, nil, nil)
	users := Users(api)

	_, err := users.List(t.Context(), ListQuery{Page: 1})
	require.NoError(t, err)
	_, err = users.List(t.Context(), ListQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, api.SetStatus(t.Context(), models.KindUsers, "1", models.StatusBanned, models.ActionBan))
	_, err = users.List(t.Context(), ListQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedisCacheGenerations(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	rdb, err := OpenRedis(t.Context(), url)
	if err != nil {
		t.Skip("Redis not available for testing:", err)
	}
	defer rdb.Close()

	c := NewRedisCache(rdb, time.Minute)
	c.prefix = "linkora:test:" + time.Now().Format("150405.000000") + ":"
	ctx := t.Context()
	require.NoError(t, c.Set(ctx, models.KindReports, "page=1", []byte("x")))
	got, ok, err := c.Get(ctx, models.KindReports, "page=1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, c.Invalidate(ctx, models.KindReports))
	_, ok, err = c.Get(ctx, models.KindReports, "page=1")
	require.NoError(t, err)
	assert.False(t, ok)
}
