// Package events is the in-process event bus: verification outcomes are
// published here and consumed by subscribers (audit trail today, the email
// notifier later) without coupling the scheduler to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TopicActivityVerified      = "activity.verified"
	TopicCredentialInvalidated = "credential.invalidated"
)

// ActivityVerified is published once per newly approved activity.
type ActivityVerified struct {
	ParticipantID    string    `json:"participant_id"`
	StravaActivityID int64     `json:"strava_activity_id"`
	RouteID          string    `json:"route_id"`
	SimilarityScore  float64   `json:"similarity_score"`
	DistanceM        float64   `json:"distance_m"`
	VerifiedAt       time.Time `json:"verified_at"`
}

// CredentialInvalidated is published when a token refresh is rejected and the
// participant must reconnect.
type CredentialInvalidated struct {
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason"`
}

// Publisher is the outbound surface the verification scheduler uses.
type Publisher interface {
	PublishActivityVerified(ctx context.Context, ev ActivityVerified) error
	PublishCredentialInvalidated(ctx context.Context, ev CredentialInvalidated) error
}

// Bus is a watermill gochannel pub/sub shared by the whole process.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

var _ Publisher = (*Bus)(nil)

// NewBus creates the in-process bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

func (b *Bus) PublishActivityVerified(ctx context.Context, ev ActivityVerified) error {
	return b.publish(TopicActivityVerified, ev)
}

func (b *Bus) PublishCredentialInvalidated(ctx context.Context, ev CredentialInvalidated) error {
	return b.publish(TopicCredentialInvalidated, ev)
}

func (b *Bus) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of messages for the topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down; pending messages are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
