package archive

import (
	"testing"
	"time"

	"statchat/pkg/domain"
)

func TestChronologicalBreaksTimestampTiesByInsertion(t *testing.T) {
	// Both rows share a timestamp; only the insertion sequence orders them.
	ts := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	rows := []MessageModel{
		{ID: "m-2", Seq: 2, SessionID: "sess-1", Role: "assistant", Content: "jawaban", CreatedAt: ts},
		{ID: "m-1", Seq: 1, SessionID: "sess-1", Role: "user", Content: "pertanyaan", CreatedAt: ts},
	}

	msgs, err := chronological(rows)
	if err != nil {
		t.Fatalf("chronological: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID != "m-1" || msgs[0].Role != domain.RoleUser {
		t.Fatalf("first message = %+v, want the user question", msgs[0])
	}
	if msgs[1].ID != "m-2" || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("second message = %+v, want the assistant answer", msgs[1])
	}
}

func TestModelRoundTripPreservesSourcesAndMetadata(t *testing.T) {
	msg := domain.Message{
		ID:      "m-1",
		Role:    domain.RoleAssistant,
		Content: "Inflasi Sumut bulan lalu 0,3 persen.",
		Model:   domain.ModelGroq,
		Sources: []domain.Source{
			{Title: "BRS", Abstract: "abs", Link: "https://example.test/brs", ReleaseDate: "2025-07-01", Similarity: 0.8},
		},
		Metadata:  &domain.QueryMetadata{OriginalQuery: "inflasi sumut", FoundDocuments: 3},
		CreatedAt: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
	}

	row, err := toModel("sess-1", msg)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	if row.SessionID != "sess-1" || len(row.Sources) == 0 || len(row.Metadata) == 0 {
		t.Fatalf("row = %+v", row)
	}

	got, err := fromModel(row)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if got.Content != msg.Content || got.Model != msg.Model {
		t.Fatalf("message fields lost: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Title != "BRS" {
		t.Fatalf("sources lost: %+v", got.Sources)
	}
	if got.Metadata == nil || got.Metadata.FoundDocuments != 3 {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}
