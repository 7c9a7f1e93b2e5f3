package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
	pkgutils "github.com/markethub/marketplace-sync/pkg/utils"
)

// SyncHandler обработчик запросов синхронизации
type SyncHandler struct {
	syncService services.SyncServiceInterface
	logger      interfaces.LoggerPort
}

// NewSyncHandler создает новый обработчик синхронизации
func NewSyncHandler(syncService services.SyncServiceInterface, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// startSyncRequest - тело запроса на запуск прогона
type startSyncRequest struct {
	ConnectionID string `json:"connection_id"`
	SyncType     string `json:"sync_type,omitempty"`
}

// StartSync обрабатывает запрос на запуск прогона синхронизации.
// Ответ 202 возвращается сразу: пакет выполняется в фоне.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var req startSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "Некорректное тело запроса",
		})
		return
	}

	if req.ConnectionID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID подключения не указан",
		})
		return
	}

	executionID, err := h.syncService.StartSync(r.Context(), req.ConnectionID, models.SyncType(req.SyncType))
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrInvalidSyncType):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{
				Error:   "bad_request",
				Code:    http.StatusBadRequest,
				Message: "Неизвестный тип синхронизации",
			})
		case errors.Is(err, utils.ErrConnectionNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Подключение не найдено",
			})
		case errors.Is(err, utils.ErrConnectionNotActive):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, errorResponse{
				Error:   "conflict",
				Code:    http.StatusConflict,
				Message: "Подключение не активно",
			})
		default:
			h.logger.ErrorWithContext(r.Context(), "Ошибка запуска прогона синхронизации",
				interfaces.LogField{Key: "error", Value: err.Error()})
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{
				Error:   "internal_error",
				Code:    http.StatusInternalServerError,
				Message: "Ошибка запуска синхронизации",
			})
		}
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{
		Success: true,
		Data: map[string]string{
			"execution_id": executionID,
			"message":      "Sync started",
		},
	})
}

// GetExecution обрабатывает запрос статуса прогона
func (h *SyncHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")
	if executionID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID прогона не указан",
		})
		return
	}

	execution, err := h.syncService.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, utils.ErrExecutionNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Прогон не найден",
			})
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения прогона",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения прогона",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    execution,
	})
}

// ListExecutions обрабатывает запрос истории прогонов подключения
func (h *SyncHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
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

	executions, total, err := h.syncService.ListExecutions(r.Context(), connectionID, page, pageSize)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения истории прогонов",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения истории прогонов",
		})
		return
	}

	pagination := pkgutils.NewPagination(page, pageSize, "started_at", true)
	pagination.SetTotal(int64(total))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    executions,
		Meta:    pagination,
	})
}
