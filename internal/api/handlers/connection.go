package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

// ConnectionHandler обработчик запросов подключений к маркетплейсам
type ConnectionHandler struct {
	syncService services.SyncServiceInterface
	logger      interfaces.LoggerPort
}

// NewConnectionHandler создает новый обработчик подключений
func NewConnectionHandler(syncService services.SyncServiceInterface, logger interfaces.LoggerPort) *ConnectionHandler {
	return &ConnectionHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// ListConnections обрабатывает запрос списка подключений
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.syncService.ListConnections(r.Context())
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения списка подключений",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения списка подключений",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    connections,
	})
}

// GetConnection обрабатывает запрос подключения по ID
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
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

	conn, err := h.syncService.GetConnection(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, utils.ErrConnectionNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Подключение не найдено",
			})
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения подключения",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения подключения",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    conn,
	})
}

// TestConnection обрабатывает запрос проверки подключения
func (h *ConnectionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
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

	conn, err := h.syncService.TestConnection(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, utils.ErrConnectionNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Подключение не найдено",
			})
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка проверки подключения",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка проверки подключения",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    conn,
	})
}
