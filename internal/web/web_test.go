package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderConsoleMarksCurrentPage(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	rec := httptest.NewRecorder()
	err = p.RenderConsole(rec, ConsoleData{Page: ConsolePages[1], AdminName: "Sarah <Chen>", CSRFToken: "tok"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<a href="/admin/manage-users" aria-current="page">`) {
		t.Fatalf("current page not marked: %s", body)
	}
	if !strings.Contains(body, `data-resource="users"`) || !strings.Contains(body, `content="tok"`) {
		t.Fatal("missing resource or csrf token")
	}
	if strings.Contains(body, "Sarah <Chen>") {
		t.Fatal("display name must be escaped")
	}
}

func TestRenderLoginShowsInlineError(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := p.RenderLogin(rec, LoginData{Error: "Your session has expired."}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `<p role="alert" id="login-error">Your session has expired.</p>`) {
		t.Fatalf("inline error missing: %s", rec.Body.String())
	}
}

func TestStaticServesScript(t *testing.T) {
	srv := httptest.NewServer(Static())
	defer srv.Close()
	res, err := http.Get(srv.URL + "/static/app.js")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(b), "initConsole") {
		t.Fatalf("unexpected static response %d", res.StatusCode)
	}
}
