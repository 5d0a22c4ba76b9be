package tariffs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/boxtariffs/boxtariffs/internal/platform/httpx"
	"github.com/boxtariffs/boxtariffs/internal/shared"
)

// Handler serves the tariff HTTP API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the tariff HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// Register mounts the tariff routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/tariffs", func(r chi.Router) {
		r.Get("/", h.handleGetByDate)
		r.Get("/dates", h.handleListDates)
		r.Get("/dates/{date}", h.handleGetDate)
		r.Get("/warehouses", h.handleListWarehouses)
		r.Get("/warehouses/{date}", h.handleWarehousesByDate)
		r.Post("/sync", h.handleSyncToday)
		r.Post("/sync/{date}", h.handleSyncDate)
		r.Post("/export", h.handleExport)
	})
}

func (h *Handler) dateParam(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if err := h.validate.Var(raw, "datetime=2006-01-02"); err != nil {
		return "", false
	}
	return raw, true
}

func (h *Handler) handleGetByDate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
			"date query parameter is required, example: /tariffs?date=2026-01-15")
		return
	}
	date, ok := h.dateParam(raw)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date format, use YYYY-MM-DD")
		return
	}

	detail, err := h.service.FindDateDetail(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleListDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.service.ListDates(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if dates == nil {
		dates = []TariffDate{}
	}
	httpx.JSON(w, http.StatusOK, dates)
}

func (h *Handler) handleGetDate(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(chi.URLParam(r, "date"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date format, use YYYY-MM-DD")
		return
	}
	td, err := h.service.FindDate(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, td)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if warehouses == nil {
		warehouses = []TariffWarehouse{}
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) handleWarehousesByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(chi.URLParam(r, "date"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date format, use YYYY-MM-DD")
		return
	}
	warehouses, err := h.service.WarehousesByDate(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if warehouses == nil {
		warehouses = []TariffWarehouse{}
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) handleSyncToday(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.service.Today())
}

func (h *Handler) handleSyncDate(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(chi.URLParam(r, "date"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date format, use YYYY-MM-DD")
		return
	}
	h.runSync(w, r, date)
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, date string) {
	result, err := h.service.SyncAndExport(r.Context(), date)
	if err != nil {
		h.logger.Error("sync and export failed", slog.String("date", date), slog.Any("error", err))
		h.respondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "successfully synced and exported tariffs for " + result.Date,
		"data":    result.SyncResult,
		"export":  result.Export,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	dateFilter := ""
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, ok := h.dateParam(raw)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date format, use YYYY-MM-DD")
			return
		}
		dateFilter = date
	}

	rows, err := h.service.GetExportRows(r.Context(), dateFilter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(rows) == 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no data found to export")
		return
	}

	outcome, err := h.service.Export(r.Context(), rows)
	if err != nil {
		h.logger.Error("export failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", err.Error())
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		// Some destinations failed while others succeeded.
		status = http.StatusPartialContent
	}
	httpx.JSON(w, status, outcome)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDateNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no tariff data found for this date")
	case errors.Is(err, ErrInvalidDate):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrSyncInProgress):
		httpx.Problem(w, http.StatusConflict, "Sync In Progress", err.Error())
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
