package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"linkoraadmin/internal/backend"
	"linkoraadmin/internal/listview"
	"linkoraadmin/internal/middleware"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/moderation"
	"linkoraadmin/internal/util"
)

type filterRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
	// Flush applies a debounced search immediately, as on blur.
	Flush bool `json:"flush"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type selectRequest struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

// view resolves the {resource} view of the signed-in admin, loading it on first access.
func (h *Handlers) view(w http.ResponseWriter, r *http.Request) (*listview.Session, listview.Controller, bool) {
	rid := middleware.RequestID(r.Context())
	kind, err := models.ParseKind(chi.URLParam(r, "resource"))
	if err != nil {
		util.WriteError(w, 404, "not_found", err.Error(), rid)
		return nil, nil, false
	}
	id, _ := middleware.Identity(r.Context())
	sess := h.Views.Session(id.UID)
	ctrl, ok := sess.View(kind)
	if !ok {
		util.WriteError(w, 404, "not_found", "unknown resource", rid)
		return nil, nil, false
	}
	if !ctrl.Loaded() {
		if err := ctrl.Load(r.Context()); err != nil {
			h.writeViewError(w, r, err)
			return nil, nil, false
		}
	}
	return sess, ctrl, true
}

func (h *Handlers) writeViewError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	var se backend.StatusError
	switch {
	case errors.Is(err, listview.ErrUnknownFilter), errors.Is(err, listview.ErrInvalidFilter):
		util.WriteError(w, 400, "invalid_filter", err.Error(), rid)
	case errors.Is(err, listview.ErrUnknownRecord):
		util.WriteError(w, 404, "not_found", err.Error(), rid)
	case errors.Is(err, listview.ErrClosed):
		util.WriteError(w, 409, "view_reset", "the view was reset, reload the page", rid)
	case errors.Is(err, context.Canceled):
		util.WriteError(w, 499, "canceled", "request canceled", rid)
	case errors.Is(err, backend.ErrUnavailable), errors.As(err, &se):
		util.WriteError(w, 502, "backend_unavailable", "Failed to load data from the server", rid)
	default:
		h.logger.Error("view operation failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
	}
}

func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("reload") == "1" {
		if err := ctrl.Load(r.Context()); err != nil {
			h.writeViewError(w, r, err)
			return
		}
	}
	util.WriteJSON(w, 200, ctrl.Render())
}

func (h *Handlers) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := util.DecodeJSON(r, maxJSONBody, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	_, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	if err := ctrl.SetFilter(r.Context(), req.Field, req.Value); err != nil {
		h.writeViewError(w, r, err)
		return
	}
	if req.Flush {
		ctrl.FlushSearch()
	}
	util.WriteJSON(w, 200, ctrl.Render())
}

func (h *Handlers) ChangePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := util.DecodeJSON(r, maxJSONBody, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	_, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	if _, err := ctrl.ChangePage(r.Context(), req.Page); err != nil {
		h.writeViewError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, ctrl.Render())
}

func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := util.DecodeJSON(r, maxJSONBody, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	_, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	switch {
	case req.All:
		ctrl.ToggleSelectAll()
	case req.ID != "":
		if err := ctrl.ToggleSelect(req.ID); err != nil {
			h.writeViewError(w, r, err)
			return
		}
	default:
		util.WriteError(w, 400, "bad_request", "id or all is required", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, ctrl.Render())
}

func (h *Handlers) actor(r *http.Request) moderation.Actor {
	id, _ := middleware.Identity(r.Context())
	a := moderation.Actor{Identity: id, IP: middleware.ClientIP(r, h.Config.TrustProxy)}
	if h.Service != nil {
		if p, err := h.Service.Profile(r.Context(), id); err == nil {
			a.Name = p.DisplayName
		}
	}
	return a
}

func (h *Handlers) writeModerationError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, moderation.ErrInvalidTransition):
		util.WriteError(w, 409, "invalid_transition", err.Error(), rid)
	case errors.Is(err, moderation.ErrNotLoaded):
		util.WriteError(w, 404, "not_found", err.Error(), rid)
	case errors.Is(err, moderation.ErrUnsupported), errors.Is(err, moderation.ErrEmptySelection):
		util.WriteError(w, 400, "bad_request", err.Error(), rid)
	default:
		h.logger.Error("moderation failed", zap.String("request_id", rid), zap.Error(err))
		util.WriteError(w, 500, "internal_error", "Internal server error", rid)
	}
}

// Act applies approve, ban or resolve to one record. A rejected backend mutation still
// answers 200: the outcome carries the error and the view is already rolled back.
func (h *Handlers) Act(w http.ResponseWriter, r *http.Request) {
	action, err := models.ParseAction(chi.URLParam(r, "action"))
	if err != nil || action == models.ActionDelete {
		util.WriteError(w, 400, "bad_request", "unsupported action", middleware.RequestID(r.Context()))
		return
	}
	h.apply(w, r, action)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.ActionDelete)
}

func (h *Handlers) apply(w http.ResponseWriter, r *http.Request, action models.Action) {
	sess, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	out, err := h.Dispatcher.Apply(r.Context(), sess, ctrl.Kind(), chi.URLParam(r, "id"), action, h.actor(r))
	if err != nil {
		h.writeModerationError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"outcome": out, "notification": out.Notification, "view": ctrl.Render()})
}

func (h *Handlers) Bulk(w http.ResponseWriter, r *http.Request) {
	action, err := models.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		util.WriteError(w, 400, "bad_request", "unsupported action", middleware.RequestID(r.Context()))
		return
	}
	sess, ctrl, ok := h.view(w, r)
	if !ok {
		return
	}
	outs, err := h.Dispatcher.Bulk(r.Context(), sess, ctrl.Kind(), action, h.actor(r))
	if err != nil {
		h.writeModerationError(w, r, err)
		return
	}
	succeeded := 0
	for _, o := range outs {
		if o.Succeeded {
			succeeded++
		}
	}
	util.WriteJSON(w, 200, map[string]any{
		"outcomes":  outs,
		"succeeded": succeeded,
		"failed":    len(outs) - succeeded,
		"view":      ctrl.Render(),
	})
}
