package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// LogPublisher writes rule events to the log when no webhook is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.Info("outbox publish",
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate", event.AggregateType+"/"+event.AggregateID),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

var _ ports.EventPublisher = (*LogPublisher)(nil)
