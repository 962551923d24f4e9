package notify

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kid-livraison/parcel/internal/platform/httpx"
	"github.com/kid-livraison/parcel/internal/shared"
)

// Handler serves notification history.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/notifications", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := shared.PageFromRequest(r)
	filter := ListFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("package_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "package_id must be an integer")
			return
		}
		filter.PackageID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := Status(raw)
		filter.Status = &st
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
