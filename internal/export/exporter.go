// Package export renders session transcripts and publishes them to object
// storage behind short-lived download links.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"statchat/pkg/domain"
)

// Exporter writes transcript snapshots and hands back presigned URLs.
type Exporter struct {
	store  ObjectStore
	urlTTL time.Duration
}

// NewExporter builds an exporter. urlTTL <= 0 defaults to 15 minutes.
func NewExporter(store ObjectStore, urlTTL time.Duration) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("object store required")
	}
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Exporter{store: store, urlTTL: urlTTL}, nil
}

type transcriptDocument struct {
	SessionID  string           `json:"sessionId"`
	Model      domain.Model     `json:"model"`
	ExportedAt time.Time        `json:"exportedAt"`
	Messages   []domain.Message `json:"messages"`
}

// Export uploads the session transcript as JSON and returns a presigned
// download URL.
func (e *Exporter) Export(ctx context.Context, state domain.SessionState) (string, error) {
	if len(state.Messages) == 0 {
		return "", errors.New("transcript is empty")
	}
	now := time.Now().UTC()
	doc := transcriptDocument{
		SessionID:  state.ID,
		Model:      state.Model,
		ExportedAt: now,
		Messages:   state.Messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}

	key := fmt.Sprintf("transcripts/%s/%s.json", state.ID, now.Format("20060102T150405Z"))
	if err := e.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}
	url, err := e.store.PresignGet(ctx, key, e.urlTTL)
	if err != nil {
		return "", fmt.Errorf("presign transcript: %w", err)
	}
	return url, nil
}
