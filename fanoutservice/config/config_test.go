package config_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/fanoutservice/config"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:  "base-project",
			ListenAddr: ":8080",
			Store:      config.StoreConfig{Driver: config.StoreFirestore},
			Gateway: config.GatewayConfig{
				Provider: config.ProviderFCM,
				Vapid: web.VapidConfig{
					PublicKey:  "base-pub",
					PrivateKey: "base-priv",
				},
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("STORE_DRIVER", "redis")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("PUSH_PROVIDER", "webpush")
		t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
		t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
		t.Setenv("VAPID_SUB_EMAIL", "env@test.com")
		t.Setenv("APNS_PRODUCTION", "true")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, ,http://b.com")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, config.StoreRedis, finalCfg.Store.Driver)
		assert.Equal(t, "localhost:6379", finalCfg.Store.Redis.Addr)
		assert.Equal(t, 3, finalCfg.Store.Redis.DB)
		assert.Equal(t, config.ProviderWebPush, finalCfg.Gateway.Provider)
		assert.Equal(t, "env-pub", finalCfg.Gateway.Vapid.PublicKey)
		assert.Equal(t, "env-priv", finalCfg.Gateway.Vapid.PrivateKey)
		assert.Equal(t, "env@test.com", finalCfg.Gateway.Vapid.SubscriberEmail)
		assert.True(t, finalCfg.Gateway.APNS.Production)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
	})

	t.Run("Success - Defaults preserved", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, "base-pub", finalCfg.Gateway.Vapid.PublicKey)
		assert.Equal(t, "http://localhost:3000", finalCfg.IdentityURL)
		assert.False(t, finalCfg.Ingestion.Enabled)
	})

	t.Run("Defaults for an empty config", func(t *testing.T) {
		finalCfg, err := config.UpdateConfigWithEnvOverrides(&config.Config{}, logger)
		require.NoError(t, err)

		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, config.StoreMemory, finalCfg.Store.Driver)
		assert.Equal(t, config.ProviderFCM, finalCfg.Gateway.Provider)
	})

	t.Run("Ingestion defaults", func(t *testing.T) {
		cfg := baseConfig()
		t.Setenv("INGESTION_ENABLED", "true")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, 1, finalCfg.Ingestion.NumPipelineWorkers)
		require.NotNil(t, finalCfg.Ingestion.PubsubConsumerConfig)
		assert.Equal(t, "env-sub", finalCfg.Ingestion.PubsubConsumerConfig.SubscriptionID)
	})

	t.Run("Seed users from env are normalised", func(t *testing.T) {
		t.Setenv("STORE_USERS", " alice:recipient , boss:Administrator,")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(&config.Config{}, logger)
		require.NoError(t, err)

		assert.Equal(t, []push.User{
			{ID: "alice", Role: push.RoleRecipient},
			{ID: "boss", Role: push.RoleAdministrator},
		}, finalCfg.Store.Users)
	})

	t.Run("Validation failures", func(t *testing.T) {
		testCases := []struct {
			name string
			cfg  *config.Config
		}{
			{"firestore without project", &config.Config{Store: config.StoreConfig{Driver: config.StoreFirestore}}},
			{"postgres without dsn", &config.Config{Store: config.StoreConfig{Driver: config.StorePostgres}}},
			{"redis without addr", &config.Config{Store: config.StoreConfig{Driver: config.StoreRedis}}},
			{"unknown store", &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}},
			{"unknown provider", &config.Config{Gateway: config.GatewayConfig{Provider: "carrier-pigeon"}}},
			{"ingestion without subscription", &config.Config{ProjectID: "p", Ingestion: config.IngestionConfig{Enabled: true}}},
			{"seed user with unknown role", &config.Config{Store: config.StoreConfig{Users: []push.User{{ID: "a", Role: "Janitor"}}}}},
			{"seed user without role", &config.Config{Store: config.StoreConfig{Users: []push.User{{ID: "a"}}}}},
			{"seed user without id", &config.Config{Store: config.StoreConfig{Users: []push.User{{Role: push.RoleSender}}}}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv("PROJECT_ID", "")
				_, err := config.UpdateConfigWithEnvOverrides(tc.cfg, logger)
				assert.Error(t, err)
			})
		}
	})
}
