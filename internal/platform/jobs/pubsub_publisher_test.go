package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

func newTestTopic(t *testing.T, id string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, id)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubCheckoutEventPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, "checkout-events")

	publisher, err := NewPubSubCheckoutEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCheckoutEventPublisher: %v", err)
	}
	defer publisher.Stop()

	event := services.CheckoutEvent{
		Type:         "checkout.session.created",
		SessionID:    "cs_test_1",
		UserID:       "user-1",
		PlanType:     "professional",
		TotalMonthly: "230.00",
		OccurredAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	id, err := publisher.PublishCheckoutEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("PublishCheckoutEvent: %v", err)
	}
	if id == "" {
		t.Fatal("expected server message id")
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.CheckoutEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SessionID != "cs_test_1" || payload.TotalMonthly != "230.00" || !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != "checkout.session.created" || attrs["userId"] != "user-1" || attrs["planType"] != "professional" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestPubSubCheckoutEventPublisherOmitsBlankAttributes(t *testing.T) {
	srv, topic := newTestTopic(t, "checkout-events")
	publisher, err := NewPubSubCheckoutEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCheckoutEventPublisher: %v", err)
	}
	defer publisher.Stop()

	if _, err := publisher.PublishCheckoutEvent(context.Background(), services.CheckoutEvent{Type: "checkout.session.created", UserID: "  "}); err != nil {
		t.Fatalf("PublishCheckoutEvent: %v", err)
	}
	attrs := srv.Messages()[0].Attributes
	if _, ok := attrs["userId"]; ok {
		t.Fatalf("blank user id must not be sent as attribute, got %v", attrs)
	}
}

func TestNewPubSubCheckoutEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubCheckoutEventPublisher(nil); err == nil {
		t.Fatal("expected error without topic")
	}
}
