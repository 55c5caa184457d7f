package jobs

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
)

// PurchaseIntent records that a shopper pressed Buy on a product page.
type PurchaseIntent struct {
	EventID   string  `json:"eventId"`
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

// PubSubIntentPublisher publishes purchase intents to a Pub/Sub topic.
type PubSubIntentPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	newID   func(t time.Time) string
}

// NewPubSubIntentPublisher constructs a publisher bound to topic.
func NewPubSubIntentPublisher(topic *pubsub.Topic) (*PubSubIntentPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub intent publisher: topic is required")
	}
	return &PubSubIntentPublisher{
		topic:   topic,
		marshal: json.Marshal,
		newID:   func(t time.Time) string {
			return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
		},
	}, nil
}

// PublishPurchaseIntent assigns an event id when missing and waits for the server ack.
func (p *PubSubIntentPublisher) PublishPurchaseIntent(ctx context.Context, intent PurchaseIntent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub intent publisher: not initialised")
	}
	if strings.TrimSpace(intent.EventID) == "" {
		intent.EventID = p.newID(time.UnixMilli(intent.CreatedAt))
	}

	data, err := p.marshal(intent)
	if err != nil {
		return "", fmt.Errorf("marshal purchase intent: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", intent.EventID)
	setAttr(attrs, "productId", intent.ProductID)
	setAttr(attrs, "type", "product.purchase_intent")

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish purchase intent: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
