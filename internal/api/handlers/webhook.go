package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
	pkgutils "github.com/markethub/marketplace-sync/pkg/utils"
)

// WebhookHandler обработчик публичного эндпоинта вебхуков.
// Эндпоинт открыт для маркетплейсов и не проходит через JWT-аутентификацию,
// поэтому методы и CORS обрабатываются здесь явно.
type WebhookHandler struct {
	webhookService services.WebhookServiceInterface
	logger         interfaces.LoggerPort
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(webhookService services.WebhookServiceInterface, logger interfaces.LoggerPort) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// Receive принимает уведомление маркетплейса. Preflight-запросы OPTIONS
// завершаются с кодом 204, любой метод кроме POST отклоняется с 405.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, errorResponse{
			Error:   "method_not_allowed",
			Code:    http.StatusMethodNotAllowed,
			Message: "Method not allowed",
		})
		return
	}

	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "Invalid webhook payload",
		})
		return
	}

	result, err := h.webhookService.HandleWebhook(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidWebhookPayload) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{
				Error:   "bad_request",
				Code:    http.StatusBadRequest,
				Message: "Invalid webhook payload",
			})
			return
		}

		h.logger.ErrorWithContext(r.Context(), "Ошибка обработки вебхука",
			interfaces.LogField{Key: "marketplace", Value: payload.Marketplace},
			interfaces.LogField{Key: "event_type", Value: payload.EventType},
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Internal server error",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    result,
	})
}

// ListLogs обрабатывает запрос журнала аудита вебхуков
func (h *WebhookHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	marketplace := r.URL.Query().Get("marketplace")
	page, pageSize := paginationParams(r)

	entries, total, err := h.webhookService.ListLogs(r.Context(), marketplace, page, pageSize)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения журнала вебхуков",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения журнала вебхуков",
		})
		return
	}

	pagination := pkgutils.NewPagination(page, pageSize, "created_at", true)
	pagination.SetTotal(int64(total))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    entries,
		Meta:    pagination,
	})
}
