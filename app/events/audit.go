package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	verificationdb "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories"
)

// AuditRecorder is the slice of the verification repository the subscriber
// needs.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, log *verificationdb.AuditLog) error
}

// StartAuditSubscriber consumes both engine topics and persists one audit row
// per event. It returns after the subscriptions are established; consumption
// runs until ctx is cancelled.
func StartAuditSubscriber(ctx context.Context, bus *Bus, recorder AuditRecorder, logger *slog.Logger) error {
	verified, err := bus.Subscribe(ctx, TopicActivityVerified)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicActivityVerified, err)
	}
	invalidated, err := bus.Subscribe(ctx, TopicCredentialInvalidated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicCredentialInvalidated, err)
	}

	go consume(ctx, verified, logger, func(msg *message.Message) error {
		var ev ActivityVerified
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("malformed %s payload: %w", TopicActivityVerified, err)
		}
		return recorder.RecordAudit(ctx, &verificationdb.AuditLog{
			ParticipantID: parseParticipantID(ev.ParticipantID),
			Event:         "activity_approved",
			Detail: fmt.Sprintf("activity %d matched route %s at %.1f%%",
				ev.StravaActivityID, ev.RouteID, ev.SimilarityScore*100),
		})
	})

	go consume(ctx, invalidated, logger, func(msg *message.Message) error {
		var ev CredentialInvalidated
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("malformed %s payload: %w", TopicCredentialInvalidated, err)
		}
		return recorder.RecordAudit(ctx, &verificationdb.AuditLog{
			ParticipantID: parseParticipantID(ev.ParticipantID),
			Event:         "credential_invalidated",
			Detail:        ev.Reason,
		})
	})

	return nil
}

func consume(ctx context.Context, msgs <-chan *message.Message, logger *slog.Logger, handle func(*message.Message) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := handle(msg); err != nil {
				logger.Error("audit subscriber failed to handle event",
					slog.String("error", err.Error()),
				)
			}
			// Ack either way; the bus is in-process and a redelivery would
			// hit the same error.
			msg.Ack()
		}
	}
}

func parseParticipantID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
