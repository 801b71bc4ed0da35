package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

// PubSubCheckoutEventPublisher publishes checkout events to a Pub/Sub topic.
type PubSubCheckoutEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.CheckoutEventPublisher = (*PubSubCheckoutEventPublisher)(nil)

// NewPubSubCheckoutEventPublisher constructs a Pub/Sub backed checkout event publisher.
func NewPubSubCheckoutEventPublisher(topic *pubsub.Topic) (*PubSubCheckoutEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub checkout publisher: topic is required")
	}
	return &PubSubCheckoutEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCheckoutEvent sends the event as JSON and waits for the server message id.
// Routing attributes let subscribers filter without decoding the payload.
func (p *PubSubCheckoutEventPublisher) PublishCheckoutEvent(ctx context.Context, event services.CheckoutEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub checkout publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal checkout event: %w", err)
	}

	attrs := make(map[string]string, 4)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "sessionId", event.SessionID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "planType", event.PlanType)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish checkout event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages. Call once during shutdown.
func (p *PubSubCheckoutEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
