package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type YamlUserSeed struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

type YamlStoreConfig struct {
	Driver      string          `yaml:"driver"`
	PostgresDSN string          `yaml:"postgres_dsn"`
	Redis       YamlRedisConfig `yaml:"redis"`
	Users       []YamlUserSeed  `yaml:"users"`
}

type YamlAPNSConfig struct {
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	P8KeyFile  string `yaml:"p8_key_file"`
	Production bool   `yaml:"production"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlGatewayConfig struct {
	Provider                string          `yaml:"provider"`
	FirebaseCredentialsFile string          `yaml:"firebase_credentials_file"`
	APNS                    YamlAPNSConfig  `yaml:"apns"`
	Vapid                   YamlVapidConfig `yaml:"vapid"`
}

type YamlIngestionConfig struct {
	Enabled                bool   `yaml:"enabled"`
	TopicID                string `yaml:"topic_id"`
	SubscriptionID         string `yaml:"subscription_id"`
	SubscriptionDLQTopicID string `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int    `yaml:"num_pipeline_workers"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Inline Firebase credentials and the APNs key body are only read from the environment.
type YamlConfig struct {
	ProjectID   string              `yaml:"project_id"`
	ListenAddr  string              `yaml:"listen_addr"`
	IdentityURL string              `yaml:"identity_url"`
	CorsConfig  YamlCorsConfig      `yaml:"cors"`
	Store       YamlStoreConfig     `yaml:"store"`
	Gateway     YamlGatewayConfig   `yaml:"gateway"`
	Ingestion   YamlIngestionConfig `yaml:"ingestion"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:   baseCfg.ProjectID,
		ListenAddr:  baseCfg.ListenAddr,
		IdentityURL: baseCfg.IdentityURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Store: StoreConfig{
			Driver:      baseCfg.Store.Driver,
			PostgresDSN: baseCfg.Store.PostgresDSN,
			Redis: RedisConfig{
				Addr:     baseCfg.Store.Redis.Addr,
				Password: baseCfg.Store.Redis.Password,
				DB:       baseCfg.Store.Redis.DB,
				Prefix:   baseCfg.Store.Redis.Prefix,
			},
		},
		Gateway: GatewayConfig{
			Provider:                baseCfg.Gateway.Provider,
			FirebaseCredentialsFile: baseCfg.Gateway.FirebaseCredentialsFile,
			APNS: APNSConfig{
				KeyID:      baseCfg.Gateway.APNS.KeyID,
				TeamID:     baseCfg.Gateway.APNS.TeamID,
				BundleID:   baseCfg.Gateway.APNS.BundleID,
				P8KeyFile:  baseCfg.Gateway.APNS.P8KeyFile,
				Production: baseCfg.Gateway.APNS.Production,
			},
			Vapid: web.VapidConfig{
				PublicKey:       baseCfg.Gateway.Vapid.PublicKey,
				PrivateKey:      baseCfg.Gateway.Vapid.PrivateKey,
				SubscriberEmail: baseCfg.Gateway.Vapid.SubscriberEmail,
			},
		},
		Ingestion: IngestionConfig{
			Enabled:                baseCfg.Ingestion.Enabled,
			TopicID:                baseCfg.Ingestion.TopicID,
			SubscriptionID:         baseCfg.Ingestion.SubscriptionID,
			SubscriptionDLQTopicID: baseCfg.Ingestion.SubscriptionDLQTopicID,
			NumPipelineWorkers:     baseCfg.Ingestion.NumPipelineWorkers,
		},
	}

	for _, u := range baseCfg.Store.Users {
		cfg.Store.Users = append(cfg.Store.Users, push.User{ID: u.ID, Role: push.Role(u.Role)})
	}

	if cfg.Ingestion.SubscriptionID != "" {
		cfg.Ingestion.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Ingestion.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store.Driver,
		"provider", cfg.Gateway.Provider,
	)

	return cfg, nil
}
