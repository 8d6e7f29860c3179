// Package consumer reads record mutation events from Kafka and applies them
// to the search service, keeping the in-memory index and the result cache in
// step with the knowledge store.
package consumer

import (
	"context"
	"log/slog"

	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/kafka"
)

// Applier is the surface the consumer drives; the search service satisfies
// it.
type Applier interface {
	Apply(ctx context.Context, event store.RecordEvent)
}

// RecordConsumer wraps a Kafka consumer to keep the index synchronised.
type RecordConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a RecordConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *RecordConsumer {
	return &RecordConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "record-consumer"),
	}
}

// Start begins consuming. It blocks until ctx is cancelled.
func (rc *RecordConsumer) Start(ctx context.Context) error {
	rc.logger.Info("record consumer starting")
	return rc.consumer.Start(ctx)
}

// HandleRecordEvent returns the Kafka handler applying mutation events.
// Undecodable or incomplete events are logged and skipped: the store stays
// the source of truth and a later rebuild repairs any gap.
func HandleRecordEvent(applier Applier) kafka.MessageHandler {
	logger := slog.Default().With("component", "record-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[store.RecordEvent](value)
		if err != nil {
			logger.Error("failed to decode record event", "error", err, "key", string(key))
			return nil
		}
		if event.Record.ID == "" {
			logger.Warn("record event without ID skipped", "type", event.Type)
			return nil
		}
		logger.Debug("applying record event", "type", event.Type, "record_id", event.Record.ID)
		applier.Apply(ctx, event)
		return nil
	}
}
