//go:build integration

package fanoutservice_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
	"google.golang.org/protobuf/types/known/durationpb"
)

// countingGateway accepts every token and records each call.
type countingGateway struct {
	mu         sync.Mutex
	callCount  int
	lastTokens []string
}

func (g *countingGateway) SendOne(_ context.Context, token string, _ push.Payload) (push.TokenResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callCount++
	g.lastTokens = []string{token}
	return push.TokenResult{Token: token, Success: true, MessageID: "123-343-success"}, nil
}

func (g *countingGateway) SendMany(_ context.Context, tokens []string, _ push.Payload) (push.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callCount++
	g.lastTokens = tokens
	results := make([]push.TokenResult, len(tokens))
	for i, t := range tokens {
		results[i] = push.TokenResult{Token: t, Success: true}
	}
	return push.NewBatchResult(results), nil
}

func (g *countingGateway) GetCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCount
}

func (g *countingGateway) GetLastTokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastTokens
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
