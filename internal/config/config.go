package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress  string
	DatabaseURI string
	AMQPURL     string
	RedisAddr   string
	LogFile     string

	OrdersTable    string
	InventoryTable string

	EventsTopic       string
	InventoryQueue    string
	NotificationQueue string

	MaxReceives           int
	VisibilityTimeout     time.Duration
	NotificationBatchSize int
	HandlerTimeout        time.Duration
	RequestTimeout        time.Duration
	StoreTimeout          time.Duration
	PublishTimeout        time.Duration
	ShutdownTimeout       time.Duration
	IdempotencyTTL        time.Duration

	CompletionURL    string
	CompletionAPIKey string
	CompletionModel  string
	RiskTimeout      time.Duration
	ContentTimeout   time.Duration

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SenderEmail    string
	RecipientEmail string
}

const (
	defaultRunAddress            = ":8080"
	defaultOrdersTable           = "orders"
	defaultInventoryTable        = "inventory"
	defaultEventsTopic           = "order-events"
	defaultInventoryQueue        = "inventory-settlement"
	defaultNotificationQueue     = "order-notification"
	defaultMaxReceives           = 3
	defaultVisibilityTimeout     = 30 * time.Second
	defaultNotificationBatchSize = 10
	defaultHandlerTimeout        = 20 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultStoreTimeout          = 2 * time.Second
	defaultPublishTimeout        = 2 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultIdempotencyTTL        = 24 * time.Hour
	defaultCompletionModel       = "gpt-4o-mini"
	defaultRiskTimeout           = 3 * time.Second
	defaultContentTimeout        = 5 * time.Second
	defaultSMTPPort              = 587
)

// InventoryBatchSize is the settlement prefetch. Settlement handles one event at a time.
const InventoryBatchSize = 1

// Load parses configuration from flags, environment variables and an optional YAML file.
func Load() (*Config, error) {
	lookup, err := withConfigFile(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return load(os.Args[1:], lookup)
}

type envLookup func(string) (string, bool)

// withConfigFile places keys from CONFIG_FILE under the environment.
// YAML keys are the lower-cased variable names, e.g. run_address.
func withConfigFile(lookup envLookup) (envLookup, error) {
	path, ok := lookup("CONFIG_FILE")
	if !ok || path == "" {
		return lookup, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		name := strings.ToLower(key)
		if !k.Exists(name) {
			return "", false
		}
		return k.String(name), true
	}, nil
}

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:            getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:           getString(lookup, "DATABASE_URI", ""),
		AMQPURL:               getString(lookup, "AMQP_URL", ""),
		RedisAddr:             getString(lookup, "REDIS_ADDRESS", ""),
		LogFile:               getString(lookup, "LOG_FILE", ""),
		OrdersTable:           getString(lookup, "ORDERS_TABLE", defaultOrdersTable),
		InventoryTable:        getString(lookup, "INVENTORY_TABLE", defaultInventoryTable),
		EventsTopic:           getString(lookup, "EVENTS_TOPIC", defaultEventsTopic),
		InventoryQueue:        getString(lookup, "INVENTORY_QUEUE", defaultInventoryQueue),
		NotificationQueue:     getString(lookup, "NOTIFICATION_QUEUE", defaultNotificationQueue),
		MaxReceives:           getInt(lookup, "MAX_RECEIVES", defaultMaxReceives),
		VisibilityTimeout:     getDuration(lookup, "VISIBILITY_TIMEOUT", defaultVisibilityTimeout),
		NotificationBatchSize: getInt(lookup, "NOTIFICATION_BATCH_SIZE", defaultNotificationBatchSize),
		HandlerTimeout:        getDuration(lookup, "HANDLER_TIMEOUT", defaultHandlerTimeout),
		RequestTimeout:        getDuration(lookup, "REQUEST_TIMEOUT", defaultRequestTimeout),
		StoreTimeout:          getDuration(lookup, "STORE_TIMEOUT", defaultStoreTimeout),
		PublishTimeout:        getDuration(lookup, "PUBLISH_TIMEOUT", defaultPublishTimeout),
		ShutdownTimeout:       getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		IdempotencyTTL:        getDuration(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		CompletionURL:         getString(lookup, "COMPLETION_URL", ""),
		CompletionAPIKey:      getString(lookup, "COMPLETION_API_KEY", ""),
		CompletionModel:       getString(lookup, "COMPLETION_MODEL", defaultCompletionModel),
		RiskTimeout:           getDuration(lookup, "RISK_TIMEOUT", defaultRiskTimeout),
		ContentTimeout:        getDuration(lookup, "CONTENT_TIMEOUT", defaultContentTimeout),
		SMTPHost:              getString(lookup, "SMTP_HOST", ""),
		SMTPPort:              getInt(lookup, "SMTP_PORT", defaultSMTPPort),
		SMTPUsername:          getString(lookup, "SMTP_USERNAME", ""),
		SMTPPassword:          getString(lookup, "SMTP_PASSWORD", ""),
		SenderEmail:           getString(lookup, "SENDER_EMAIL", ""),
		RecipientEmail:        getString(lookup, "RECIPIENT_EMAIL", ""),
	}

	fs := flag.NewFlagSet("orderpipeline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	durations := []struct {
		name  string
		usage string
		dst   *time.Duration
	}{
		{"visibility-timeout", "Redelivery delay after a failed delivery", &cfg.VisibilityTimeout},
		{"handler-timeout", "Per-delivery processing budget", &cfg.HandlerTimeout},
		{"request-timeout", "Intake request budget", &cfg.RequestTimeout},
		{"store-timeout", "Per store call timeout", &cfg.StoreTimeout},
		{"publish-timeout", "Per publish timeout", &cfg.PublishTimeout},
		{"shutdown-timeout", "Graceful shutdown timeout", &cfg.ShutdownTimeout},
		{"idempotency-ttl", "Idempotency key retention", &cfg.IdempotencyTTL},
		{"risk-timeout", "Risk check deadline", &cfg.RiskTimeout},
		{"content-timeout", "Notification content deadline", &cfg.ContentTimeout},
	}
	raw := make([]string, len(durations))
	for i, d := range durations {
		raw[i] = d.dst.String()
		fs.StringVar(&raw[i], d.name, raw[i], d.usage)
	}

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.AMQPURL, "b", cfg.AMQPURL, "RabbitMQ URL")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for idempotency keys")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Rotating log file path")
	fs.StringVar(&cfg.OrdersTable, "orders-table", cfg.OrdersTable, "Orders table name")
	fs.StringVar(&cfg.InventoryTable, "inventory-table", cfg.InventoryTable, "Inventory table name")
	fs.StringVar(&cfg.EventsTopic, "topic", cfg.EventsTopic, "Order events topic")
	fs.StringVar(&cfg.InventoryQueue, "inventory-queue", cfg.InventoryQueue, "Settlement queue")
	fs.StringVar(&cfg.NotificationQueue, "notification-queue", cfg.NotificationQueue, "Notification queue")
	fs.IntVar(&cfg.MaxReceives, "max-receives", cfg.MaxReceives, "Deliveries before dead-letter")
	fs.IntVar(&cfg.NotificationBatchSize, "notification-batch", cfg.NotificationBatchSize, "Notification batch size")
	fs.StringVar(&cfg.CompletionURL, "completion-url", cfg.CompletionURL, "Text completion endpoint")
	fs.StringVar(&cfg.CompletionModel, "completion-model", cfg.CompletionModel, "Text completion model")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", cfg.SMTPHost, "SMTP host")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", cfg.SMTPPort, "SMTP port")
	fs.StringVar(&cfg.SenderEmail, "sender", cfg.SenderEmail, "Notification sender address")
	fs.StringVar(&cfg.RecipientEmail, "recipient", cfg.RecipientEmail, "Notification recipient address")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	for i, d := range durations {
		v, err := time.ParseDuration(raw[i])
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if keyFile, ok := lookup("COMPLETION_API_KEY_FILE"); ok && keyFile != "" {
		content, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read completion api key file: %w", err)
		}
		cfg.CompletionAPIKey = strings.TrimSpace(string(content))
	}

	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func normalize(cfg *Config) {
	positiveInt(&cfg.MaxReceives, defaultMaxReceives)
	positiveInt(&cfg.NotificationBatchSize, defaultNotificationBatchSize)
	positiveInt(&cfg.SMTPPort, defaultSMTPPort)

	positiveDuration(&cfg.VisibilityTimeout, defaultVisibilityTimeout)
	positiveDuration(&cfg.HandlerTimeout, defaultHandlerTimeout)
	positiveDuration(&cfg.RequestTimeout, defaultRequestTimeout)
	positiveDuration(&cfg.StoreTimeout, defaultStoreTimeout)
	positiveDuration(&cfg.PublishTimeout, defaultPublishTimeout)
	positiveDuration(&cfg.ShutdownTimeout, defaultShutdownTimeout)
	positiveDuration(&cfg.IdempotencyTTL, defaultIdempotencyTTL)
	positiveDuration(&cfg.RiskTimeout, defaultRiskTimeout)
	positiveDuration(&cfg.ContentTimeout, defaultContentTimeout)
}

func validate(cfg *Config) error {
	if cfg.RiskTimeout >= cfg.RequestTimeout {
		return fmt.Errorf("risk timeout %v must be shorter than request timeout %v", cfg.RiskTimeout, cfg.RequestTimeout)
	}
	if cfg.ContentTimeout >= cfg.HandlerTimeout {
		return fmt.Errorf("content timeout %v must be shorter than handler timeout %v", cfg.ContentTimeout, cfg.HandlerTimeout)
	}
	if cfg.HandlerTimeout >= cfg.VisibilityTimeout {
		return fmt.Errorf("handler timeout %v must be shorter than visibility timeout %v", cfg.HandlerTimeout, cfg.VisibilityTimeout)
	}
	if cfg.InventoryQueue == cfg.NotificationQueue {
		return fmt.Errorf("inventory and notification queues must differ")
	}
	if cfg.OrdersTable == "" || cfg.InventoryTable == "" {
		return fmt.Errorf("table names must be provided")
	}
	return nil
}

func positiveInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func positiveDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
