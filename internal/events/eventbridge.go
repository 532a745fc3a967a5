package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"storefront-backend/internal/config"
	apperrors "storefront-backend/internal/errors"
)

// PutEvents accepts at most ten entries per call.
const eventBridgeBatchSize = 10

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher sends events to an EventBridge bus.
type EventBridgePublisher struct {
	client   EventBridgeAPI
	eventBus string
	source   string
	logger   *zap.Logger
}

func NewEventBridgePublisher(client EventBridgeAPI, eventBus, source string, logger *zap.Logger) *EventBridgePublisher {
	if eventBus == "" {
		eventBus = "default"
	}
	if source == "" {
		source = "storefront.orders"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:   client,
		eventBus: eventBus,
		source:   source,
		logger:   logger,
	}
}

// Publish sends events in batches. It stops at the first batch that fails.
func (p *EventBridgePublisher) Publish(ctx context.Context, events ...Event) error {
	for start := 0; start < len(events); start += eventBridgeBatchSize {
		end := start + eventBridgeBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, batch []Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, e := range batch {
		detail, err := json.Marshal(e)
		if err != nil {
			return apperrors.Internal(apperrors.CodeSerializationError, "encode event").
				WithResource(e.ID).
				WithCause(err).
				Build()
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBus),
			Source:       aws.String(p.source),
			DetailType:   aws.String(e.Type),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(e.OccurredAt),
			Resources:    []string{e.AggregateID},
		})
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return apperrors.BackendUnavailable(apperrors.CodeEventPublishFailed, "put events").
			WithCause(err).
			WithRetryable(true).
			Build()
	}

	if out.FailedEntryCount > 0 {
		for i, entry := range out.Entries {
			if entry.ErrorCode == nil || i >= len(batch) {
				continue
			}
			p.logger.Warn("EventBridge rejected event",
				zap.String("event_id", batch[i].ID),
				zap.String("event_type", batch[i].Type),
				zap.String("error_code", aws.ToString(entry.ErrorCode)),
				zap.String("error_message", aws.ToString(entry.ErrorMessage)),
			)
		}
		return apperrors.BackendUnavailable(apperrors.CodeEventPublishFailed,
			fmt.Sprintf("%d of %d events failed", out.FailedEntryCount, len(batch))).
			WithRetryable(true).
			Build()
	}

	p.logger.Debug("Published events", zap.Int("count", len(batch)), zap.String("bus", p.eventBus))
	return nil
}

// NewPublisher builds the publisher selected by cfg. Disabled publishing
// falls back to the log publisher.
func NewPublisher(cfg config.Events, awsCfg aws.Config, logger *zap.Logger) Publisher {
	if !cfg.Enabled {
		return NewLogPublisher(logger)
	}
	switch cfg.Provider {
	case "eventbridge":
		return NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.Source, logger)
	case "memory":
		return NewMemoryPublisher()
	default:
		return NewLogPublisher(logger)
	}
}
