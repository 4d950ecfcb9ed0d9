package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"linkoraadmin/internal/auth"
	"linkoraadmin/internal/backend"
	"linkoraadmin/internal/config"
	"linkoraadmin/internal/dashboard"
	"linkoraadmin/internal/db"
	"linkoraadmin/internal/identity"
	"linkoraadmin/internal/listview"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/moderation"
	"linkoraadmin/internal/notify"
	"linkoraadmin/internal/service"
	"linkoraadmin/internal/session"
	"linkoraadmin/internal/store"
	"linkoraadmin/internal/web"
)

const usersPage = `{"success":true,"totalCount":4,"currentPage":1,"totalPages":1,"data":[
{"id":1,"name":"Alex Johnson","email":"alex@example.com","status":"active","joinDate":"2024-01-10"},
{"id":2,"name":"Sam Rodriguez","email":"sam@example.com","status":"banned","joinDate":"2024-01-11"},
{"id":3,"name":"Casey Brown","email":"casey@example.com","status":"pending","joinDate":"2024-01-12"},
{"id":4,"name":"Riley Garcia","email":"riley@example.com","status":"pending","joinDate":"2024-01-13"}]}`

type fakePlatform struct {
	mu      sync.Mutex
	patched []string
	// failing ids answer 500 to mutations
	failing map[string]bool
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/users":
		_, _ = io.WriteString(w, usersPage)
	case r.Method == http.MethodGet && r.URL.Path == "/api/stats":
		_, _ = io.WriteString(w, `{"totalUsers":4,"activeUsers":1,"genderDistribution":[{"label":"Male","value":45},{"label":"Female","value":55}]}`)
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"success":true,"data":[],"totalCount":0,"currentPage":1,"totalPages":1}`)
	case len(parts) >= 3 && (r.Method == http.MethodPatch || r.Method == http.MethodDelete):
		id := parts[2]
		f.mu.Lock()
		f.patched = append(f.patched, r.Method+" "+id)
		fail := f.failing[id]
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"success":false,"error":"database unavailable"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	router   http.Handler
	platform *fakePlatform
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqdb, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "console.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.Migrate(sqdb, db.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(sqdb, db.DriverSQLite)
	pwHash, err := auth.HashPassword("SecretPass123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := st.EnsureAdmin(t.Context(), "admin@linkora.app", "Sarah Chen", pwHash); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	platform := &fakePlatform{failing: map[string]bool{"4": true}}
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		SessionCookieName:  "session",
		SessionMaxAgeSec:   604800,
		CookieSecureMode:   "auto",
		CSRFCookieName:     "linkora_csrf",
		TokenRetryAttempts: 3,
		ListMode:           "server",
		ListPageSize:       10,
	}
	m := metrics.New("linkora_test")
	api := backend.NewHTTPClient(srv.URL, 5*time.Second, nil, m)
	provider := identity.NewLocalProvider(st, []byte("0123456789abcdef0123456789abcdef"), time.Hour)
	svc := service.New(st, nil)

	hub := notify.NewHub(nil, m)
	go hub.Run(t.Context())
	center := notify.NewCenter(st, hub, nil)

	views := listview.NewRegistry(api, listview.Options{Mode: listview.ModeServer, PageSize: 10, SearchDebounce: time.Hour}, time.Hour, m)
	t.Cleanup(views.Close)
	stats := dashboard.NewService(api, time.Minute, nil)
	t.Cleanup(stats.Close)
	profiles := dashboard.NewProfileDrafts(svc, time.Hour, nil)
	t.Cleanup(profiles.Stop)
	pages, err := web.New()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	router := NewRouter(Deps{
		Config:     cfg,
		Metrics:    m,
		Identity:   provider,
		Relay:      session.NewRelay(cfg, nil, m),
		Views:      views,
		Dispatcher: moderation.New(api, moderation.Options{Audit: svc, Notifier: center, Metrics: m}),
		Service:    svc,
		Stats:      stats,
		Profiles:   profiles,
		Notify:     center,
		Pages:      pages,
		Store:      st,
		Backend:    api,
	})
	return &testEnv{router: router, platform: platform}
}

type browser struct {
	t       *testing.T
	env     *testEnv
	cookies map[string]string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, env: e, cookies: map[string]string{}}
}

func (b *browser) do(method, path string, body any) *httptest.ResponseRecorder {
	b.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if csrf := b.cookies["linkora_csrf"]; csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	b.env.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rec
}

func (b *browser) login() {
	b.t.Helper()
	rec := b.do(http.MethodPost, "/api/login", map[string]string{"email": "admin@linkora.app", "password": "SecretPass123!"})
	if rec.Code != http.StatusOK {
		b.t.Fatalf("expected login 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if b.cookies["session"] == "" || b.cookies["linkora_csrf"] == "" {
		b.t.Fatalf("login did not set cookies: %v", b.cookies)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type userView struct {
	Records []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"records"`
	Selection []string `json:"selection"`
}

func (v userView) status(id string) string {
	for _, r := range v.Records {
		if r.ID == id {
			return r.Status
		}
	}
	return ""
}

func TestLoginSetsSessionAndMeWorks(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	rec := b.do(http.MethodGet, "/api/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /me 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	me := decode[struct {
		Identity struct {
			Email string `json:"email"`
		} `json:"identity"`
		CSRFToken string `json:"csrf_token"`
	}](t, rec)
	if me.Identity.Email != "admin@linkora.app" || me.CSRFToken != b.cookies["linkora_csrf"] {
		t.Fatalf("unexpected /me payload: %+v", me)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	b := newTestEnv(t).browser(t)
	rec := b.do(http.MethodPost, "/api/login", map[string]string{"email": "admin@linkora.app", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if _, ok := b.cookies["session"]; ok {
		t.Fatal("failed login must not set a session")
	}
}

func TestSessionRelayEndpoints(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	rec := b.do(http.MethodOptions, "/api/session", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	rec = b.do(http.MethodPost, "/api/session", map[string]string{})
	if rec.Code != http.StatusBadRequest || b.cookies["session"] != "" {
		t.Fatalf("expected 400 without cookie, got %d %v", rec.Code, b.cookies)
	}
	b.do(http.MethodPost, "/api/session", map[string]string{"token": "abc"})
	b.do(http.MethodPost, "/api/verify-session", map[string]string{"token": "def"})
	if b.cookies["session"] != "def" {
		t.Fatalf("expected verify-session to overwrite, got %q", b.cookies["session"])
	}
}

func TestRouteGuardAndLiveValidation(t *testing.T) {
	b := newTestEnv(t).browser(t)

	rec := b.do(http.MethodGet, "/admin/manage-users", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	b.cookies["session"] = "forged"
	rec = b.do(http.MethodGet, "/admin", nil)
	loc, _ := url.Parse(rec.Header().Get("Location"))
	if rec.Code != http.StatusFound || loc.Path != "/login" || loc.Query().Get("error") == "" {
		t.Fatalf("expected redirect with inline error, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if _, ok := b.cookies["session"]; ok {
		t.Fatal("forged cookie should have been cleared")
	}

	b.login()
	rec = b.do(http.MethodGet, "/login", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/admin" {
		t.Fatalf("expected /login to bounce to /admin, got %d", rec.Code)
	}
	rec = b.do(http.MethodGet, "/admin/manage-users", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `data-resource="users"`) {
		t.Fatalf("expected console shell, got %d", rec.Code)
	}
}

func TestApproveWritesAuditEntry(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login()

	rec := b.do(http.MethodGet, "/api/admin/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected view 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec = b.do(http.MethodPost, "/api/admin/users/3/approve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected approve 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Outcome moderation.Outcome `json:"outcome"`
		View    userView           `json:"view"`
	}](t, rec)
	if !resp.Outcome.Succeeded || resp.View.status("3") != "active" {
		t.Fatalf("unexpected outcome: %+v", resp)
	}

	rec = b.do(http.MethodGet, "/api/admin/audit-log?action=user_approved", nil)
	audit := decode[struct {
		Items []struct {
			Action    string `json:"action"`
			Target    string `json:"target"`
			AdminName string `json:"admin_name"`
		} `json:"items"`
		Summary struct {
			UserApproved int `json:"user_approved"`
		} `json:"summary"`
	}](t, rec)
	if len(audit.Items) != 1 || audit.Items[0].Target != "Casey Brown" || audit.Items[0].Action != "User Approved" {
		t.Fatalf("unexpected audit items: %+v", audit.Items)
	}
	if audit.Items[0].AdminName != "Sarah Chen" || audit.Summary.UserApproved != 1 {
		t.Fatalf("unexpected audit details: %+v", audit)
	}

	rec = b.do(http.MethodGet, "/api/admin/notifications", nil)
	if !strings.Contains(rec.Body.String(), "User Casey Brown approved") {
		t.Fatalf("success notification missing: %s", rec.Body.String())
	}
}

func TestRejectedMutationRollsBack(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	b.do(http.MethodGet, "/api/admin/users", nil)

	rec := b.do(http.MethodPost, "/api/admin/users/4/approve", nil)
	resp := decode[struct {
		Outcome moderation.Outcome `json:"outcome"`
		View    userView           `json:"view"`
	}](t, rec)
	if rec.Code != http.StatusOK || resp.Outcome.Succeeded || !resp.Outcome.RolledBack {
		t.Fatalf("expected rolled back outcome, got %d %+v", rec.Code, resp.Outcome)
	}
	if got := resp.View.status("4"); got != "pending" {
		t.Fatalf("expected status restored to pending, got %q", got)
	}
	if resp.Outcome.Notification == nil || resp.Outcome.Notification.Message != "Failed to approve user Riley Garcia" {
		t.Fatalf("unexpected notification: %+v", resp.Outcome.Notification)
	}
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login()
	b.do(http.MethodGet, "/api/admin/users", nil)

	rec := b.do(http.MethodPost, "/api/admin/users/2/approve", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rec.Code, rec.Body.String())
	}
	env.platform.mu.Lock()
	defer env.platform.mu.Unlock()
	if len(env.platform.patched) != 0 {
		t.Fatalf("no backend call expected, got %v", env.platform.patched)
	}
}

func TestMutationsRequireCSRF(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	delete(b.cookies, "linkora_csrf")
	rec := b.do(http.MethodPost, "/api/admin/users/page", map[string]int{"page": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}
}

func TestSelectionAndFilters(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	b.do(http.MethodGet, "/api/admin/users", nil)

	rec := b.do(http.MethodPost, "/api/admin/users/select", map[string]any{"all": true})
	if v := decode[userView](t, rec); len(v.Selection) != 4 {
		t.Fatalf("expected all 4 selected, got %v", v.Selection)
	}
	rec = b.do(http.MethodPost, "/api/admin/users/select", map[string]any{"all": true})
	if v := decode[userView](t, rec); len(v.Selection) != 0 {
		t.Fatalf("expected selection restored to empty, got %v", v.Selection)
	}
	rec = b.do(http.MethodPost, "/api/admin/users/filters", map[string]string{"field": "planet", "value": "mars"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown filter, got %d", rec.Code)
	}
	rec = b.do(http.MethodPost, "/api/admin/users/bulk/approve", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty selection, got %d", rec.Code)
	}
}

func TestDashboardAndHealth(t *testing.T) {
	b := newTestEnv(t).browser(t)
	rec := b.do(http.MethodGet, "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d body=%s", rec.Code, rec.Body.String())
	}
	b.login()
	rec = b.do(http.MethodGet, "/api/admin/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected dashboard 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	v := decode[dashboard.View](t, rec)
	if len(v.GenderDistribution) != 2 || v.Cards[0].Value != 4 {
		t.Fatalf("unexpected dashboard: %+v", v)
	}
}

func TestProfileEditFlush(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	rec := b.do(http.MethodPatch, "/api/admin/profile", map[string]string{"display_name": "Sarah C."})
	resp := decode[map[string]any](t, rec)
	if resp["draft"] != "Sarah C." || resp["pending"] != true {
		t.Fatalf("expected local echo, got %v", resp)
	}
	rec = b.do(http.MethodPost, "/api/admin/profile/flush", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"display_name":"Sarah C."`) {
		t.Fatalf("expected saved profile, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutClearsSession(t *testing.T) {
	b := newTestEnv(t).browser(t)
	b.login()
	rec := b.do(http.MethodPost, "/api/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	if _, ok := b.cookies["session"]; ok {
		t.Fatal("session cookie should be cleared")
	}
	rec = b.do(http.MethodGet, "/api/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}
