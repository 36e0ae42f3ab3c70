package ports

import (
	"context"

	"github.com/usgin/modelmanager/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}
