package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Store drivers
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreRedis     = "redis"
)

// Push providers
const (
	ProviderFCM     = "fcm"
	ProviderAPNS    = "apns"
	ProviderWebPush = "webpush"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type StoreConfig struct {
	Driver      string
	PostgresDSN string
	Redis       RedisConfig

	// Users seeds the memory driver. The other drivers read users managed elsewhere.
	Users []push.User
}

type APNSConfig struct {
	KeyID      string
	TeamID     string
	BundleID   string
	P8KeyFile  string
	P8Key      string
	Production bool
}

type GatewayConfig struct {
	Provider string

	// Firebase credentials: inline JSON wins over a file; neither means ADC.
	FirebaseCredentialsJSON string
	FirebaseCredentialsFile string

	APNS  APNSConfig
	Vapid web.VapidConfig
}

type IngestionConfig struct {
	Enabled                bool
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID   string
	ListenAddr  string
	IdentityURL string

	CorsConfig middleware.CorsConfig
	Store      StoreConfig
	Gateway    GatewayConfig
	Ingestion  IngestionConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*dst = val
		}
	}

	override("PROJECT_ID", &cfg.ProjectID)
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	override("IDENTITY_SERVICE_URL", &cfg.IdentityURL)

	// Store
	override("STORE_DRIVER", &cfg.Store.Driver)
	override("POSTGRES_DSN", &cfg.Store.PostgresDSN)
	override("REDIS_ADDR", &cfg.Store.Redis.Addr)
	override("REDIS_PASSWORD", &cfg.Store.Redis.Password)
	override("REDIS_PREFIX", &cfg.Store.Redis.Prefix)
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Store.Redis.DB = db
		}
	}

	if val := os.Getenv("STORE_USERS"); val != "" {
		logger.Debug("Overriding config value", "key", "STORE_USERS", "source", "env")
		cfg.Store.Users = parseUserSeeds(val)
	}

	// Gateway
	override("PUSH_PROVIDER", &cfg.Gateway.Provider)
	override("FIREBASE_CREDENTIALS_JSON", &cfg.Gateway.FirebaseCredentialsJSON)
	override("FIREBASE_CREDENTIALS_FILE", &cfg.Gateway.FirebaseCredentialsFile)
	override("APNS_KEY_ID", &cfg.Gateway.APNS.KeyID)
	override("APNS_TEAM_ID", &cfg.Gateway.APNS.TeamID)
	override("APNS_BUNDLE_ID", &cfg.Gateway.APNS.BundleID)
	override("APNS_P8_KEY", &cfg.Gateway.APNS.P8Key)
	override("APNS_P8_KEY_FILE", &cfg.Gateway.APNS.P8KeyFile)
	if val := os.Getenv("APNS_PRODUCTION"); val != "" {
		cfg.Gateway.APNS.Production, _ = strconv.ParseBool(val)
	}
	override("VAPID_PUBLIC_KEY", &cfg.Gateway.Vapid.PublicKey)
	override("VAPID_PRIVATE_KEY", &cfg.Gateway.Vapid.PrivateKey)
	override("VAPID_SUB_EMAIL", &cfg.Gateway.Vapid.SubscriberEmail)

	// Ingestion
	if val := os.Getenv("INGESTION_ENABLED"); val != "" {
		cfg.Ingestion.Enabled, _ = strconv.ParseBool(val)
	}
	override("TOPIC_ID", &cfg.Ingestion.TopicID)
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.Ingestion.SubscriptionID = val
		cfg.Ingestion.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	override("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.Ingestion.SubscriptionDLQTopicID)
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.Ingestion.NumPipelineWorkers = workers
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		var cleanOrigins []string
		for _, o := range strings.Split(corsOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = "http://localhost:3000"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = ProviderFCM
	}

	switch cfg.Store.Driver {
	case StoreMemory:
	case StoreFirestore:
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required for the firestore store (set via YAML or PROJECT_ID env var)")
		}
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres store (set via YAML or POSTGRES_DSN env var)")
		}
	case StoreRedis:
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis store (set via YAML or REDIS_ADDR env var)")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	for i, u := range cfg.Store.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return fmt.Errorf("store.users[%d] has no id", i)
		}
		role, err := push.ParseRole(string(u.Role))
		if err != nil {
			return fmt.Errorf("store user %q: %w", id, err)
		}
		cfg.Store.Users[i] = push.User{ID: id, Role: role}
	}

	switch cfg.Gateway.Provider {
	case ProviderFCM, ProviderAPNS, ProviderWebPush:
	default:
		return fmt.Errorf("unknown push provider %q", cfg.Gateway.Provider)
	}

	if cfg.Ingestion.Enabled {
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required for ingestion (set via YAML or PROJECT_ID env var)")
		}
		if cfg.Ingestion.SubscriptionID == "" {
			return fmt.Errorf("subscription_id is required for ingestion (set via YAML or SUBSCRIPTION_ID env var)")
		}
		if cfg.Ingestion.NumPipelineWorkers <= 0 {
			cfg.Ingestion.NumPipelineWorkers = 1
		}
		if cfg.Ingestion.PubsubConsumerConfig == nil {
			cfg.Ingestion.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Ingestion.SubscriptionID)
		}
	}
	return nil
}

// parseUserSeeds reads "id:Role" pairs separated by commas. A pair without a
// role is kept with an empty role so validation reports it.
func parseUserSeeds(val string) []push.User {
	var users []push.User
	for _, pair := range strings.Split(val, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, role, _ := strings.Cut(pair, ":")
		users = append(users, push.User{ID: id, Role: push.Role(strings.TrimSpace(role))})
	}
	return users
}
