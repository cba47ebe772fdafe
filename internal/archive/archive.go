// Package archive persists completed chat exchanges. Recording is
// best-effort and asynchronous; a failed archive never surfaces to the
// session that produced the exchange.
package archive

import (
	"context"

	"statchat/pkg/domain"
)

// TranscriptStore persists archived messages, append-only.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, msgs ...domain.Message) error
	List(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
}

// DirectRecorder writes exchanges straight into the transcript store. Used
// when no queue is configured.
type DirectRecorder struct {
	store TranscriptStore
}

// NewDirectRecorder builds a recorder bound to a store.
func NewDirectRecorder(store TranscriptStore) *DirectRecorder {
	return &DirectRecorder{store: store}
}

// Record appends the exchange, logging failures.
func (r *DirectRecorder) Record(ctx context.Context, sessionID string, msgs ...domain.Message) {
	if err := r.store.Append(ctx, sessionID, msgs...); err != nil {
		logRecordFailure(ctx, sessionID, err)
	}
}
