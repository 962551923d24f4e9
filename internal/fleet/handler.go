package fleet

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kid-livraison/parcel/internal/platform/httpx"
	"github.com/kid-livraison/parcel/internal/shared"
)

// Handler serves courier and vehicle routes.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers fleet routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/couriers", func(r chi.Router) {
		r.Get("/", h.listCouriers)
		r.Post("/", h.createCourier)
		r.Get("/{id}", h.showCourier)
		r.Patch("/{id}", h.updateCourier)
	})
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", h.listVehicles)
		r.Post("/", h.createVehicle)
		r.Get("/{id}", h.showVehicle)
		r.Patch("/{id}", h.updateVehicle)
	})
}

func (h *Handler) listCouriers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := shared.PageFromRequest(r)
	filter := CourierFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := CourierStatus(v)
		filter.Status = &st
	}
	rows, total, err := h.service.ListCouriers(r.Context(), filter)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) createCourier(w http.ResponseWriter, r *http.Request) {
	var req CreateCourierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCourier(r.Context(), req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) showCourier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.GetCourier(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) updateCourier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateCourierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateCourier(r.Context(), id, req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := shared.PageFromRequest(r)
	filter := VehicleFilter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		st := VehicleStatus(v)
		filter.Status = &st
	}
	if v := r.URL.Query().Get("type"); v != "" {
		vt := VehicleType(v)
		filter.Type = &vt
	}
	rows, total, err := h.service.ListVehicles(r.Context(), filter)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateVehicle(r.Context(), req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) showVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.GetVehicle(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.UpdateVehicle(r.Context(), id, req)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}
