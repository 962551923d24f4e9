package parcel

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kid-livraison/parcel/internal/platform/httpx"
	"github.com/kid-livraison/parcel/internal/shared"
	"github.com/kid-livraison/parcel/internal/tariff"
)

// Handler serves package endpoints and the public tracking lookup.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers package routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/packages", h.list)
	r.Post("/packages", h.register)
	r.Get("/packages/{id}", h.show)
	r.Get("/packages/{id}/history", h.history)
	r.Post("/packages/{id}/deliver", h.deliver)
	r.Post("/packages/{id}/events", h.applyEvent)
	r.Get("/track/{trackingNumber}", h.track)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search"), Limit: limit, Offset: offset}
	if v := q.Get("status"); v != "" {
		st := Status(v)
		filter.Status = &st
	}
	if v := q.Get("priority"); v != "" {
		p := tariff.Priority(v)
		filter.Priority = &p
	}
	rows, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pkg, inv, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, Registration{Package: pkg, Invoice: inv})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pkg, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pkg)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req DeliverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pkg, err := h.service.MarkDelivered(r.Context(), id, req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pkg)
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req EventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pkg, err := h.service.ApplyEvent(r.Context(), id, req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pkg)
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Track(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
