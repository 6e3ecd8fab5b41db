package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-fanout-service/fanoutservice/config"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/apns"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	fsStore "github.com/tinywideclouds/go-fanout-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-fanout-service/internal/storage/memory"
	"github.com/tinywideclouds/go-fanout-service/internal/storage/postgres"
	redisStore "github.com/tinywideclouds/go-fanout-service/internal/storage/redis"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// newDirectory opens the configured user directory. The returned func
// releases whatever connection backs it.
func newDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (push.Directory, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case config.StoreFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("firestore client: %w", err)
		}
		return fsStore.NewDirectory(fsClient), func() { _ = fsClient.Close() }, nil

	case config.StorePostgres:
		db, err := postgres.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		dir := postgres.NewDirectory(db)
		if err := dir.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("postgres migrate: %w", err)
		}
		return dir, func() { _ = db.Close() }, nil

	case config.StoreRedis:
		logger.Info("Connecting to Redis...", "addr", cfg.Store.Redis.Addr)
		rdb, err := redisStore.NewClient(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, noop, err
		}
		return redisStore.NewDirectory(rdb, cfg.Store.Redis.Prefix), func() { _ = rdb.Close() }, nil

	default:
		if len(cfg.Store.Users) == 0 {
			logger.Warn("In-memory directory has no users; every registration will be rejected until store.users is set")
		} else {
			logger.Warn("Using in-memory directory; registrations are lost on restart", "users", len(cfg.Store.Users))
		}
		return memory.NewDirectory(cfg.Store.Users...), noop, nil
	}
}

// newGateway never fails: a provider that cannot be initialised yields a
// gateway whose sends report push.ErrProviderUnavailable, so the HTTP API
// stays up and callers see a clear failure summary.
func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) push.Gateway {
	switch cfg.Gateway.Provider {
	case config.ProviderAPNS:
		key := cfg.Gateway.APNS.P8Key
		if key == "" && cfg.Gateway.APNS.P8KeyFile != "" {
			b, err := os.ReadFile(cfg.Gateway.APNS.P8KeyFile)
			if err != nil {
				logger.Warn("Could not read APNs key file", "file", cfg.Gateway.APNS.P8KeyFile, "err", err)
			}
			key = string(b)
		}
		gw, err := apns.NewGateway(apns.Config{
			KeyID:        cfg.Gateway.APNS.KeyID,
			TeamID:       cfg.Gateway.APNS.TeamID,
			BundleID:     cfg.Gateway.APNS.BundleID,
			P8KeyContent: key,
			Production:   cfg.Gateway.APNS.Production,
		}, logger)
		if err != nil {
			logger.Warn("APNs gateway unavailable", "err", err)
			return apns.NewUnavailableGateway(logger)
		}
		logger.Info("APNs gateway enabled", "bundle_id", cfg.Gateway.APNS.BundleID, "production", cfg.Gateway.APNS.Production)
		return gw

	case config.ProviderWebPush:
		if cfg.Gateway.Vapid.PrivateKey == "" || cfg.Gateway.Vapid.PublicKey == "" {
			logger.Warn("VAPID keys missing in configuration. Web Push will fail.")
		} else {
			logger.Info("Web push gateway enabled", "public_key", cfg.Gateway.Vapid.PublicKey)
		}
		return web.NewGateway(cfg.Gateway.Vapid, logger)

	default:
		// Declared as the interface so a failed init passes an untyped nil.
		var client fcm.MessagingClient
		if m, err := newFirebaseMessaging(ctx, cfg); err != nil {
			logger.Warn("Firebase messaging unavailable", "err", err)
		} else {
			client = m
			logger.Info("FCM gateway enabled", "project_id", cfg.ProjectID)
		}
		return fcm.NewGateway(client, logger)
	}
}

func newFirebaseMessaging(ctx context.Context, cfg *config.Config) (fcm.MessagingClient, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Gateway.FirebaseCredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Gateway.FirebaseCredentialsJSON)))
	case cfg.Gateway.FirebaseCredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Gateway.FirebaseCredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
	}
	m, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	return m, nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.Ingestion.SubscriptionID, "subscriptions")
	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              convertPubsub(cfg.ProjectID, cfg.Ingestion.TopicID, "topics"),
		AckDeadlineSeconds: 10,
	}
	if cfg.Ingestion.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.Ingestion.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	if cfg.Ingestion.TopicID != "" {
		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
			} else {
				logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
				return nil, fmt.Errorf("could not create sub: %s", sub)
			}
		}
	}

	consumerCfg := cfg.Ingestion.PubsubConsumerConfig
	if consumerCfg == nil {
		consumerCfg = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Ingestion.SubscriptionID)
	}
	return messagepipeline.NewGooglePubsubConsumer(consumerCfg, psClient, logger)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
