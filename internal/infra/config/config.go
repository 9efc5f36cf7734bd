package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Feed struct {
		PageSize int `envconfig:"FEED_PAGE_SIZE" default:"20"`
	} `envconfig:""`

	Notify struct {
		ReminderLead  time.Duration `envconfig:"REMINDER_LEAD" default:"30m"`
		Interval      time.Duration `envconfig:"DISPATCH_INTERVAL" default:"1m"`
		Batch         int           `envconfig:"DISPATCH_BATCH" default:"100"`
		RemoteTimeout time.Duration `envconfig:"REMOTE_CALL_TIMEOUT" default:"10s"`
		ClaimTTL      time.Duration `envconfig:"CLAIM_TTL" default:"5m"`
	} `envconfig:""`

	Push struct {
		Provider    string `envconfig:"PUSH_PROVIDER" default:"log"`
		ExpoURL     string `envconfig:"EXPO_PUSH_URL" default:"https://exp.host/--/api/v2/push/send"`
		ExpoToken   string `envconfig:"EXPO_ACCESS_TOKEN"`
		TelegramKey string `envconfig:"TG_BOT_TOKEN"`
		RabbitURL   string `envconfig:"RABBITMQ_URL"`
		Queue       string `envconfig:"PUSH_QUEUE" default:"push_messages"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
