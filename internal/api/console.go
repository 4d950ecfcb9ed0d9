package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"linkoraadmin/internal/middleware"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/service"
	"linkoraadmin/internal/store"
	"linkoraadmin/internal/util"
)

func parsePagination(r *http.Request) (int, int) {
	page := 1
	pageSize := 25
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			pageSize = min(max(ps, 1), 100)
		}
	}
	return page, pageSize
}

func (h *Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	page, pageSize := parsePagination(r)
	qv := r.URL.Query()
	query, err := service.ParseAuditQuery(qv.Get("q"), qv.Get("action"), qv.Get("from"), qv.Get("to"), page, pageSize)
	if err != nil {
		util.WriteError(w, 400, "bad_request", err.Error(), rid)
		return
	}
	items, total, err := h.Service.ListAudit(r.Context(), query)
	if err != nil {
		h.logger.Error("audit list failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		return
	}
	summary, err := h.Service.AuditSummary(r.Context(), query)
	if err != nil {
		h.logger.Error("audit summary failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		return
	}
	if items == nil {
		items = []models.AuditEntry{}
	}
	util.WriteJSON(w, 200, map[string]any{
		"items":       items,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": max(1, (total+pageSize-1)/pageSize),
		"summary":     summary,
	})
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	v, err := h.Stats.View(r.Context())
	if err != nil {
		util.WriteError(w, 502, "backend_unavailable", "Failed to load dashboard statistics", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, v)
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
}

type profileResponse struct {
	Profile models.Admin `json:"profile"`
	// Draft is the locally echoed value still waiting to be saved.
	Draft   string `json:"draft,omitempty"`
	Pending bool   `json:"pending"`
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) (models.Admin, bool) {
	id, _ := middleware.Identity(r.Context())
	a, err := h.Service.Profile(r.Context(), id)
	if err != nil {
		rid := middleware.RequestID(r.Context())
		h.logger.Error("profile load failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		return models.Admin{}, false
	}
	return a, true
}

func (h *Handlers) writeProfile(w http.ResponseWriter, a models.Admin) {
	out := profileResponse{Profile: a}
	if draft, ok := h.Profiles.Pending(a.ID); ok {
		out.Draft, out.Pending = draft, true
	}
	util.WriteJSON(w, 200, out)
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	a, ok := h.profile(w, r)
	if !ok {
		return
	}
	h.writeProfile(w, a)
}

// EditProfile echoes the edit back immediately; the store write happens after the quiet period.
func (h *Handlers) EditProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := util.DecodeJSON(r, maxJSONBody, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	a, ok := h.profile(w, r)
	if !ok {
		return
	}
	h.Profiles.Edit(a.ID, req.DisplayName)
	h.writeProfile(w, a)
}

func (h *Handlers) FlushProfile(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	a, ok := h.profile(w, r)
	if !ok {
		return
	}
	if _, err := h.Profiles.Flush(a.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDisplayName):
			util.WriteError(w, 400, "invalid_display_name", err.Error(), rid)
		case errors.Is(err, store.ErrNotFound):
			util.WriteError(w, 404, "not_found", "profile not found", rid)
		default:
			h.logger.Error("profile save failed", zap.String("request_id", rid), zap.Error(err))
			util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		}
		return
	}
	a, ok = h.profile(w, r)
	if !ok {
		return
	}
	h.writeProfile(w, a)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.Identity(r.Context())
	_, limit := parsePagination(r)
	items, err := h.Notify.List(r.Context(), id.UID, r.URL.Query().Get("all") == "1", limit)
	if err != nil {
		rid := middleware.RequestID(r.Context())
		h.logger.Error("notification list failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) DismissNotification(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	id, _ := middleware.Identity(r.Context())
	if err := h.Notify.Dismiss(r.Context(), id.UID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.WriteError(w, 404, "not_found", "notification not found", rid)
			return
		}
		h.logger.Error("notification dismiss failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		return
	}
	util.WriteJSON(w, 200, map[string]bool{"success": true})
}

func (h *Handlers) NotificationStream(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.Identity(r.Context())
	h.Notify.Hub().Serve(w, r, id.UID, map[string]any{"identity": id})
}
