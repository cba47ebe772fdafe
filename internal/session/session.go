package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"statchat/internal/util"
	"statchat/pkg/domain"
)

// AnswerClient issues one question to the answer API.
type AnswerClient interface {
	Ask(ctx context.Context, question string, model domain.Model) (domain.Answer, error)
}

// Recorder receives completed exchanges for archiving. Implementations must
// be best-effort and never fail the session.
type Recorder interface {
	Record(ctx context.Context, sessionID string, msgs ...domain.Message)
}

var (
	// ErrEmptyQuestion rejects blank or whitespace-only submissions.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrAskInFlight rejects a submission while another is outstanding.
	// Concurrent submissions are rejected, not queued or replaced.
	ErrAskInFlight = errors.New("a question is already being answered")
	// ErrUnknownModel rejects model ids the answer API does not accept.
	ErrUnknownModel = errors.New("unknown model")
)

// Session owns one conversation transcript, the in-flight ask state and the
// pending user input, and mediates all traffic to the answer API. The
// transcript is append-only; at most one ask is outstanding at a time.
type Session struct {
	mu         sync.Mutex
	state      domain.SessionState
	client     AnswerClient
	recorder   Recorder
	lastActive time.Time
}

// New creates an idle session with an empty transcript.
func New(id string, model domain.Model, client AnswerClient, recorder Recorder) *Session {
	now := time.Now().UTC()
	return &Session{
		state: domain.SessionState{
			ID:        id,
			Messages:  []domain.Message{},
			Model:     model,
			CreatedAt: now,
			UpdatedAt: now,
		},
		client:     client,
		recorder:   recorder,
		lastActive: now,
	}
}

// Submit appends the user message, clears the pending input and issues one
// ask. It blocks until the ask resolves; the awaiting state is observable
// from other goroutines via Snapshot. On failure the error is stored on the
// session and echoed as an apologetic assistant message; Submit itself
// returns an error only when the submission is rejected up front.
func (s *Session) Submit(ctx context.Context, question string) error {
	trimmed := strings.TrimSpace(question)

	s.mu.Lock()
	if trimmed == "" {
		s.mu.Unlock()
		return ErrEmptyQuestion
	}
	if s.state.Awaiting {
		s.mu.Unlock()
		return ErrAskInFlight
	}
	userMsg := domain.Message{
		ID:        util.NewID(),
		Role:      domain.RoleUser,
		Content:   question,
		CreatedAt: time.Now().UTC(),
	}
	s.state.Messages = append(s.state.Messages, userMsg)
	s.state.Input = ""
	s.state.Awaiting = true
	s.state.LastError = ""
	s.touchLocked()
	model := s.state.Model
	s.mu.Unlock()

	answer, err := s.client.Ask(ctx, trimmed, model)

	s.mu.Lock()
	var assistantMsg domain.Message
	if err != nil {
		errText := err.Error()
		s.state.LastError = errText
		assistantMsg = domain.Message{
			ID:        util.NewID(),
			Role:      domain.RoleAssistant,
			Content:   "Maaf, terjadi kesalahan saat memproses pertanyaan Anda: " + errText,
			Model:     model,
			CreatedAt: time.Now().UTC(),
		}
	} else {
		assistantMsg = domain.Message{
			ID:        util.NewID(),
			Role:      domain.RoleAssistant,
			Content:   answer.Text,
			Model:     answer.Model,
			Sources:   answer.Sources,
			Metadata:  answer.Metadata,
			CreatedAt: time.Now().UTC(),
		}
	}
	s.state.Messages = append(s.state.Messages, assistantMsg)
	s.state.Awaiting = false
	s.touchLocked()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Record(ctx, s.state.ID, userMsg, assistantMsg)
	}
	return nil
}

// QuickFill sets the pending input to a preset suggestion and immediately
// submits it, behaving exactly like a manual Submit of that text.
func (s *Session) QuickFill(ctx context.Context, text string) error {
	s.mu.Lock()
	s.state.Input = text
	s.touchLocked()
	s.mu.Unlock()
	return s.Submit(ctx, text)
}

// SetInput mirrors the pending input text as the user types.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Input = text
	s.touchLocked()
}

// SelectModel switches the model used for subsequent submissions. Ignored
// while an ask is in flight.
func (s *Session) SelectModel(model domain.Model) error {
	if !model.Known() {
		return ErrUnknownModel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Awaiting {
		return nil
	}
	s.state.Model = model
	s.touchLocked()
	return nil
}

// DismissError clears the stored error without touching the transcript.
// Calling it when no error is set is a no-op.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = ""
	s.touchLocked()
}

// Snapshot returns a consistent copy of the session state for rendering.
// Messages are immutable once appended, so sharing their inner values is safe.
func (s *Session) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.Messages = make([]domain.Message, len(s.state.Messages))
	copy(snap.Messages, s.state.Messages)
	return snap
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.state.ID
}

// LastActive reports the time of the last session operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touchLocked() {
	now := time.Now().UTC()
	s.lastActive = now
	s.state.UpdatedAt = now
}
