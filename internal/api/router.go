package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/markethub/marketplace-sync/internal/api/handlers"
	"github.com/markethub/marketplace-sync/internal/api/middleware"
	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/security"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

// SetupRouter настраивает маршрутизатор
func SetupRouter(
	syncService services.SyncServiceInterface,
	webhookService services.WebhookServiceInterface,
	logger interfaces.LoggerPort,
	corsAllowedOrigins []string,
	jwtManager *security.JWTManager,
) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(corsAllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimiter(1000, time.Minute))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	webhookHandler := handlers.NewWebhookHandler(webhookService, logger)

	// Публичный эндпоинт вебхуков: маркетплейсы не проходят JWT-аутентификацию.
	// Обработчик сам разбирает методы (POST, OPTIONS, остальные - 405).
	r.HandleFunc("/webhooks/marketplace", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(security.AuthMiddleware(jwtManager, logger))

		syncHandler := handlers.NewSyncHandler(syncService, logger)
		connectionHandler := handlers.NewConnectionHandler(syncService, logger)
		productHandler := handlers.NewProductHandler(syncService, logger)

		// Маршруты синхронизации
		r.Route("/sync", func(r chi.Router) {
			// Запуск прогона синхронизации
			r.Post("/", syncHandler.StartSync)

			// Статус прогона по ID
			r.Get("/executions/{id}", syncHandler.GetExecution)
		})

		// Маршруты подключений
		r.Route("/connections", func(r chi.Router) {
			r.Get("/", connectionHandler.ListConnections)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", connectionHandler.GetConnection)

				// Проверка доступности API маркетплейса
				r.Post("/test", connectionHandler.TestConnection)

				// История прогонов подключения
				r.Get("/executions", syncHandler.ListExecutions)

				// Товары подключения
				r.Get("/products", productHandler.ListProducts)
			})
		})

		// Маршруты товаров
		r.Route("/products/{id}", func(r chi.Router) {
			// Переключение автосинхронизации
			r.Patch("/autosync", productHandler.SetAutoSync)

			// Импорт товара в локальную витрину
			r.Post("/import", productHandler.ImportProduct)
		})

		// Журнал аудита вебхуков
		r.Get("/webhooks/logs", webhookHandler.ListLogs)
	})

	return r
}
