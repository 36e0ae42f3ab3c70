package ports

import (
	"context"

	"github.com/usgin/modelmanager/internal/core/domain"
)

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

// OutboxWriter appends events inside the surrounding write transaction.
type OutboxWriter interface {
	Append(ctx context.Context, topic string, event domain.EventEnvelope) error
}
