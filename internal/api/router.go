package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"linkoraadmin/internal/config"
	"linkoraadmin/internal/dashboard"
	"linkoraadmin/internal/identity"
	"linkoraadmin/internal/listview"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/middleware"
	"linkoraadmin/internal/moderation"
	"linkoraadmin/internal/notify"
	"linkoraadmin/internal/rate"
	"linkoraadmin/internal/service"
	"linkoraadmin/internal/session"
	"linkoraadmin/internal/util"
	"linkoraadmin/internal/version"
	"linkoraadmin/internal/web"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Identity   identity.Provider
	Relay      *session.Relay
	Views      *listview.Registry
	Dispatcher *moderation.Dispatcher
	Service    *service.Service
	Stats      *dashboard.Service
	Profiles   *dashboard.ProfileDrafts
	Notify     *notify.Center
	Pages      *web.Pages
	Store      Pinger
	Backend    Pinger
}

type Handlers struct {
	Deps
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	h := &Handlers{Deps: d, limiter: rate.NewLimiter(), logger: logging.OrNop(d.Logger).Named("api")}
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.RequestLogger(h.logger, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, version.Current())
	})

	r.Group(func(r chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:     cfg.CORSAllowedOrigins,
				AllowedMethods:     []string{"POST", "OPTIONS"},
				AllowedHeaders:     []string{"Content-Type"},
				AllowCredentials:   true,
				OptionsPassthrough: true,
				MaxAge:             300,
			}))
		}
		r.Post("/api/session", d.Relay.Create)
		r.Options("/api/session", session.Preflight)
		r.Post("/api/verify-session", d.Relay.Verify)
		r.Options("/api/verify-session", session.Preflight)
	})

	r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, cfg.TrustProxy)).Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity(d.Identity, d.Relay))
		r.Get("/api/me", h.Me)

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/audit-log", h.AuditLog)
			r.Get("/profile", h.GetProfile)
			r.Get("/notifications", h.ListNotifications)
			r.Get("/notifications/ws", h.NotificationStream)
			r.Get("/{resource}", h.GetView)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFFromCookie(cfg.CSRFCookieName))
				r.Patch("/profile", h.EditProfile)
				r.Post("/profile/flush", h.FlushProfile)
				r.Post("/notifications/{id}/dismiss", h.DismissNotification)

				r.Post("/{resource}/filters", h.SetFilter)
				r.Post("/{resource}/page", h.ChangePage)
				r.Post("/{resource}/select", h.Select)
				r.Post("/{resource}/bulk/{action}", h.Bulk)
				r.Post("/{resource}/{id}/{action}", h.Act)
				r.Delete("/{resource}/{id}", h.Delete)
			})
		})
	})

	r.Handle("/static/*", web.Static())
	r.Group(func(r chi.Router) {
		r.Use(middleware.RouteGuard(cfg.SessionCookieName))
		r.Get("/login", h.LoginPage)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin", http.StatusFound)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePageIdentity(d.Identity, d.Relay, h.logger))
			for _, p := range web.ConsolePages {
				r.Get(p.Path, h.ConsolePage(p))
			}
		})
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	ready := map[string]any{"checked_at": time.Now().UTC().Format(time.RFC3339)}
	comps := map[string]any{}
	ok := true
	for name, p := range map[string]Pinger{"store": h.Store, "backend": h.Backend} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			ok = false
			comps[name] = map[string]any{"ok": false, "error": err.Error()}
			continue
		}
		comps[name] = map[string]any{"ok": true}
	}
	ready["components"] = comps
	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, 200, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, 503, ready)
}
