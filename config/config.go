package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MarketplaceCredentials содержит учетные данные одного маркетплейса.
// Ключи задаются в конфигурации процесса по одному блоку на маркетплейс;
// поиск выполняется по точному (с учетом регистра) имени маркетплейса.
type MarketplaceCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	Region       string `mapstructure:"region"`
	SellerID     string `mapstructure:"seller_id"`
}

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Host              string
		Port              int
		Password          string
		DB                int
		DefaultExpiration time.Duration // срок действия кэша по умолчанию
	}

	Kafka struct {
		Brokers       []string `mapstructure:"brokers"`
		GroupID       string   `mapstructure:"group_id"`
		EventsTopic   string   `mapstructure:"events_topic"`
		CommandsTopic string   `mapstructure:"commands_topic"`
		WebhooksTopic string   `mapstructure:"webhooks_topic"`
	}

	Metrics struct {
		Enabled bool
		Port    int `mapstructure:"port"`
	}

	Security struct {
		JWTSecret        string
		JWTExpirationMin time.Duration
		CORSAllowOrigins []string
	}

	Sync struct {
		// ProductDelay - пауза между товарами в пакете, вежливость к
		// лимитам маркетплейса, а не механизм корректности
		ProductDelay time.Duration
		// DefaultMarkup - множитель наценки, если он не задан на товаре
		DefaultMarkup float64
		// CredentialsTTL - срок жизни кэша разрешенных учетных данных
		CredentialsTTL time.Duration
	}

	// Marketplaces - учетные данные по имени маркетплейса
	Marketplaces map[string]MarketplaceCredentials
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// MarketplaceCredentials возвращает учетные данные маркетплейса по имени.
// Имя сравнивается с точным совпадением регистра.
func (c *Config) MarketplaceCredentials(marketplace string) (MarketplaceCredentials, bool) {
	creds, ok := c.Marketplaces[marketplace]
	return creds, ok
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	viper.SetDefault("appName", "marketplace-sync")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	// Настройки сервера
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.shutdownTimeout", "5s")

	// Настройки Postgres
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "marketplace_sync")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.defaultExpiration", "10m")

	// Настройки Kafka
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.groupID", "marketplace-sync")
	viper.SetDefault("kafka.eventsTopic", "sync-events")
	viper.SetDefault("kafka.commandsTopic", "sync-commands")
	viper.SetDefault("kafka.webhooksTopic", "marketplace-webhooks")

	// Настройки метрик
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	viper.SetDefault("security.jwtSecret", "change-me")
	viper.SetDefault("security.jwtExpirationMin", "60m")
	viper.SetDefault("security.corsAllowOrigins", []string{"*"})

	// Настройки синхронизации
	viper.SetDefault("sync.productDelay", "200ms")
	viper.SetDefault("sync.defaultMarkup", 1.30)
	viper.SetDefault("sync.credentialsTTL", "5m")
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables() {
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	// Настройки сервера
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Настройки Postgres
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.defaultExpiration", "REDIS_DEFAULT_EXPIRATION")

	// Настройки Kafka
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.groupID", "KAFKA_GROUP_ID")
	viper.BindEnv("kafka.eventsTopic", "KAFKA_EVENTS_TOPIC")
	viper.BindEnv("kafka.commandsTopic", "KAFKA_COMMANDS_TOPIC")
	viper.BindEnv("kafka.webhooksTopic", "KAFKA_WEBHOOKS_TOPIC")

	// Настройки метрик
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	viper.BindEnv("security.jwtSecret", "JWT_SECRET")
	viper.BindEnv("security.jwtExpirationMin", "JWT_EXPIRATION_MIN")
	viper.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")

	// Настройки синхронизации
	viper.BindEnv("sync.productDelay", "SYNC_PRODUCT_DELAY")
	viper.BindEnv("sync.defaultMarkup", "SYNC_DEFAULT_MARKUP")
	viper.BindEnv("sync.credentialsTTL", "SYNC_CREDENTIALS_TTL")
}
