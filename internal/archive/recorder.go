package archive

import (
	"context"

	"statchat/internal/util"
	"statchat/pkg/domain"
)

// QueueRecorder publishes exchanges to the archive queue for asynchronous
// persistence.
type QueueRecorder struct {
	queue *RedisExchangeQueue
}

// NewQueueRecorder builds a recorder bound to a queue.
func NewQueueRecorder(queue *RedisExchangeQueue) *QueueRecorder {
	return &QueueRecorder{queue: queue}
}

// Record enqueues the exchange, logging failures.
func (r *QueueRecorder) Record(ctx context.Context, sessionID string, msgs ...domain.Message) {
	if err := r.queue.Enqueue(ctx, sessionID, msgs); err != nil {
		logRecordFailure(ctx, sessionID, err)
	}
}

func logRecordFailure(ctx context.Context, sessionID string, err error) {
	util.LoggerFromContext(ctx).Error("failed to archive exchange", "session_id", sessionID, "err", err)
}
