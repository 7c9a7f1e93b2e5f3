package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markethub/marketplace-sync/config"
	"github.com/markethub/marketplace-sync/internal/adapters/cache"
	"github.com/markethub/marketplace-sync/internal/adapters/logger"
	"github.com/markethub/marketplace-sync/internal/adapters/messaging"
	postgres "github.com/markethub/marketplace-sync/internal/adapters/storage"
	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/domain/services"
	"github.com/markethub/marketplace-sync/internal/marketplace"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
	"github.com/markethub/marketplace-sync/pkg/tx"
)

// Метрики для Prometheus
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_processed_total",
		Help: "Общее количество обработанных сообщений",
	}, []string{"topic", "status"})

	messageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_message_processing_duration_seconds",
		Help:    "Длительность обработки сообщений",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active_goroutines",
		Help: "Количество активных горутин-обработчиков",
	})
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	// HTTP сервер для метрик, если они включены
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})

			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info("Запуск HTTP сервера для метрик",
				interfaces.LogField{Key: "addr", Value: addr})

			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Ошибка запуска HTTP сервера для метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	connectionStr, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	repo, err := postgres.NewPostgresStorage(ctx, connectionStr)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer repo.Close()
	log.Info("Хранилище инициализировано")

	cacheClient, err := cache.NewRedisCache(
		ctx,
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации кэша",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer cacheClient.Close()
	log.Info("Кэш инициализирован")

	messagingClient, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer messagingClient.Close()
	log.Info("Система обмена сообщениями инициализирована")

	resolver := marketplace.NewCredentialResolver(cfg)
	adapters := marketplace.NewRegistry()
	listing := marketplace.NewListingAdapter(resolver, cfg.Sync.DefaultMarkup)
	for name := range cfg.Marketplaces {
		adapters.Register(name, listing)
	}

	txManager := tx.NewTxManager(repo.Pool())

	syncService := services.NewSyncService(
		repo, adapters, resolver, cacheClient, messagingClient, log,
		cfg.Sync.ProductDelay, cfg.Kafka.EventsTopic,
	)
	webhookService := services.NewWebhookService(
		repo, txManager, messagingClient, log, cfg.Kafka.EventsTopic,
	)
	log.Info("Сервисы синхронизации инициализированы")

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Подписываемся на команды синхронизации и на реплей вебхуков
	subscribeToSyncCommands(ctx, messagingClient, syncService, cfg.Kafka.CommandsTopic, log, &wg)
	subscribeToWebhooks(ctx, messagingClient, webhookService, cfg.Kafka.WebhooksTopic, log, &wg)

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
		cancel()
		wg.Wait()
		close(done)
	}()

	log.Info("Воркер запущен и готов к обработке сообщений")
	<-done
	log.Info("Воркер корректно завершил работу")
}

// Подписка на команды синхронизации: внешние системы запускают прогоны через
// топик команд, минуя HTTP API
func subscribeToSyncCommands(ctx context.Context, messagingClient interfaces.MessagingPort,
	syncService services.SyncServiceInterface, topic string,
	logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	commandHandler := func(ctx context.Context, msg *interfaces.Message) error {
		startTime := time.Now()
		activeWorkers.Inc()
		defer activeWorkers.Dec()

		logger.InfoWithContext(ctx, "Получена команда синхронизации",
			interfaces.LogField{Key: "message_id", Value: msg.ID},
			interfaces.LogField{Key: "topic", Value: msg.Topic},
		)

		var command struct {
			CommandType  string `json:"command_type"`
			ConnectionID string `json:"connection_id"`
			SyncType     string `json:"sync_type,omitempty"`
		}

		if err := json.Unmarshal(msg.Value, &command); err != nil {
			logger.ErrorWithContext(ctx, "Ошибка декодирования команды",
				interfaces.LogField{Key: "error", Value: err.Error()})
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return err
		}

		switch command.CommandType {
		case messaging.RunSyncCommand:
			executionID, err := syncService.StartSync(ctx, command.ConnectionID, models.SyncType(command.SyncType))
			if err != nil {
				logger.ErrorWithContext(ctx, "Ошибка запуска прогона синхронизации",
					interfaces.LogField{Key: "connection_id", Value: command.ConnectionID},
					interfaces.LogField{Key: "error", Value: err.Error()})
				messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
				return err
			}
			logger.InfoWithContext(ctx, "Прогон синхронизации запущен по команде",
				interfaces.LogField{Key: "execution_id", Value: executionID})

		default:
			logger.WarnWithContext(ctx, "Неизвестный тип команды",
				interfaces.LogField{Key: "command_type", Value: command.CommandType})
			messagesProcessed.WithLabelValues(msg.Topic, "unknown").Inc()
			return nil
		}

		duration := time.Since(startTime).Seconds()
		messageProcessingDuration.WithLabelValues(msg.Topic).Observe(duration)
		messagesProcessed.WithLabelValues(msg.Topic, "success").Inc()

		return nil
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		unsubscribe, err := messagingClient.Subscribe(ctx, topic, commandHandler)
		if err != nil {
			logger.Error("Ошибка подписки на команды синхронизации",
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer unsubscribe()

		logger.Info("Подписка на команды синхронизации установлена")

		<-ctx.Done()
		logger.Info("Отмена подписки на команды синхронизации")
	}()
}

// Подписка на реплей вебхуков: уведомления, принятые другими узлами или
// поставленные в очередь шлюзом, проходят тот же путь обработки, что и HTTP
func subscribeToWebhooks(ctx context.Context, messagingClient interfaces.MessagingPort,
	webhookService services.WebhookServiceInterface, topic string,
	logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	webhookHandler := func(ctx context.Context, msg *interfaces.Message) error {
		startTime := time.Now()
		activeWorkers.Inc()
		defer activeWorkers.Dec()

		var payload models.WebhookPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.ErrorWithContext(ctx, "Ошибка декодирования вебхука",
				interfaces.LogField{Key: "error", Value: err.Error()},
				interfaces.LogField{Key: "message_id", Value: msg.ID},
			)
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return err
		}

		result, err := webhookService.HandleWebhook(ctx, &payload)
		if err != nil {
			logger.ErrorWithContext(ctx, "Ошибка обработки вебхука из очереди",
				interfaces.LogField{Key: "marketplace", Value: payload.Marketplace},
				interfaces.LogField{Key: "event_type", Value: payload.EventType},
				interfaces.LogField{Key: "error", Value: err.Error()})
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return err
		}

		duration := time.Since(startTime).Seconds()
		messageProcessingDuration.WithLabelValues(msg.Topic).Observe(duration)
		messagesProcessed.WithLabelValues(msg.Topic, "success").Inc()

		logger.InfoWithContext(ctx, "Вебхук из очереди обработан",
			interfaces.LogField{Key: "event_type", Value: payload.EventType},
			interfaces.LogField{Key: "message", Value: result.Message},
		)

		return nil
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		unsubscribe, err := messagingClient.Subscribe(ctx, topic, webhookHandler)
		if err != nil {
			logger.Error("Ошибка подписки на вебхуки",
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer unsubscribe()

		logger.Info("Подписка на вебхуки установлена")

		<-ctx.Done()
		logger.Info("Отмена подписки на вебхуки")
	}()
}
