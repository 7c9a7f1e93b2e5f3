package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
	pkgutils "github.com/markethub/marketplace-sync/pkg/utils"
)

// ProductHandler обработчик запросов товаров маркетплейсов
type ProductHandler struct {
	syncService services.SyncServiceInterface
	logger      interfaces.LoggerPort
}

// NewProductHandler создает новый обработчик товаров
func NewProductHandler(syncService services.SyncServiceInterface, logger interfaces.LoggerPort) *ProductHandler {
	return &ProductHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// ListProducts обрабатывает запрос списка товаров подключения
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "id")
	if connectionID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID подключения не указан",
		})
		return
	}

	page, pageSize := paginationParams(r)

	products, total, err := h.syncService.ListProducts(r.Context(), connectionID, page, pageSize)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения списка товаров",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения списка товаров",
		})
		return
	}

	pagination := pkgutils.NewPagination(page, pageSize, "updated_at", true)
	pagination.SetTotal(int64(total))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    products,
		Meta:    pagination,
	})
}

// autoSyncRequest - тело запроса на переключение автосинхронизации
type autoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoSync обрабатывает запрос переключения автосинхронизации товара
func (h *ProductHandler) SetAutoSync(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if productID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID товара не указан",
		})
		return
	}

	var req autoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "Некорректное тело запроса",
		})
		return
	}

	if err := h.syncService.SetAutoSync(r.Context(), productID, req.Enabled); err != nil {
		if errors.Is(err, utils.ErrProductNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Товар не найден",
			})
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка переключения автосинхронизации",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка переключения автосинхронизации",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data: map[string]interface{}{
			"product_id": productID,
			"auto_sync":  req.Enabled,
		},
	})
}

// ImportProduct обрабатывает запрос импорта товара в локальную витрину
func (h *ProductHandler) ImportProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if productID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID товара не указан",
		})
		return
	}

	local, err := h.syncService.ImportProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, utils.ErrProductNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Товар не найден",
			})
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка импорта товара",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка импорта товара",
		})
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response{
		Success: true,
		Data:    local,
	})
}
