package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"statchat/internal/ragclient"
	"statchat/pkg/domain"
)

type askCall struct {
	question string
	model    domain.Model
}

type fakeClient struct {
	mu     sync.Mutex
	calls  []askCall
	answer domain.Answer
	err    error
	block  chan struct{}
}

func (f *fakeClient) Ask(ctx context.Context, question string, model domain.Model) (domain.Answer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, askCall{question: question, model: model})
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.answer, f.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]domain.Message
}

func (f *fakeRecorder) Record(ctx context.Context, sessionID string, msgs ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
}

func newTestSession(client AnswerClient) *Session {
	return New("sess-1", domain.ModelGroq, client, nil)
}

func TestSubmitAppendsUserMessageAndClearsInputBeforeResponse(t *testing.T) {
	client := &fakeClient{
		answer: domain.Answer{Text: "ok", Model: domain.ModelGroq, Sources: []domain.Source{}},
		block:  make(chan struct{}),
	}
	sess := newTestSession(client)
	sess.SetInput("Data inflasi Sumut")

	done := make(chan error, 1)
	go func() {
		done <- sess.Submit(context.Background(), "Data inflasi Sumut")
	}()

	// Wait until the ask is in flight.
	deadline := time.After(2 * time.Second)
	for {
		snap := sess.Snapshot()
		if snap.Awaiting {
			if len(snap.Messages) != 1 {
				t.Fatalf("expected exactly one user message before response, got %d", len(snap.Messages))
			}
			if snap.Messages[0].Role != domain.RoleUser || snap.Messages[0].Content != "Data inflasi Sumut" {
				t.Fatalf("unexpected user message: %+v", snap.Messages[0])
			}
			if snap.Input != "" {
				t.Fatalf("input not cleared on submission, got %q", snap.Input)
			}
			if snap.LastError != "" {
				t.Fatalf("error not cleared on submission, got %q", snap.LastError)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never entered the awaiting state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Awaiting {
		t.Fatal("session should be idle after resolution")
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(snap.Messages))
	}
}

func TestSubmitRejectsEmptyAndWhitespace(t *testing.T) {
	client := &fakeClient{}
	sess := newTestSession(client)

	for _, question := range []string{"", "   ", "\n\t "} {
		if err := sess.Submit(context.Background(), question); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("Submit(%q) = %v, want ErrEmptyQuestion", question, err)
		}
	}
	if client.callCount() != 0 {
		t.Fatalf("no ask should be issued, got %d", client.callCount())
	}
	if len(sess.Snapshot().Messages) != 0 {
		t.Fatal("transcript must stay empty")
	}
}

func TestSubmitRejectsWhileAwaiting(t *testing.T) {
	client := &fakeClient{
		answer: domain.Answer{Text: "ok", Model: domain.ModelGroq},
		block:  make(chan struct{}),
	}
	sess := newTestSession(client)

	done := make(chan error, 1)
	go func() { done <- sess.Submit(context.Background(), "first") }()

	deadline := time.After(2 * time.Second)
	for !sess.Snapshot().Awaiting {
		select {
		case <-deadline:
			t.Fatal("session never entered the awaiting state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := sess.Submit(context.Background(), "second"); !errors.Is(err, ErrAskInFlight) {
		t.Fatalf("second submit = %v, want ErrAskInFlight", err)
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if got := client.callCount(); got != 1 {
		t.Fatalf("expected a single ask, got %d", got)
	}
	snap := sess.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("rejected submit must not touch the transcript, got %d messages", len(snap.Messages))
	}
}

func TestSubmitSuccessAppendsAssistantMessage(t *testing.T) {
	client := &fakeClient{
		answer: domain.Answer{Text: "X", Model: domain.ModelGroq, Sources: []domain.Source{}},
	}
	sess := newTestSession(client)

	if err := sess.Submit(context.Background(), "q"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Awaiting {
		t.Fatal("loading must return to false")
	}
	if snap.LastError != "" {
		t.Fatalf("unexpected error: %q", snap.LastError)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.Messages))
	}
	assistant := snap.Messages[1]
	if assistant.Role != domain.RoleAssistant || assistant.Content != "X" {
		t.Fatalf("unexpected assistant message: %+v", assistant)
	}
	if assistant.Sources == nil || len(assistant.Sources) != 0 {
		t.Fatalf("expected empty source list, got %v", assistant.Sources)
	}
}

func TestSubmitFailureStoresErrorAndApology(t *testing.T) {
	client := &fakeClient{
		err: &ragclient.APIError{Status: http.StatusInternalServerError, Message: "internal error"},
	}
	sess := newTestSession(client)

	if err := sess.Submit(context.Background(), "q"); err != nil {
		t.Fatalf("submit must not propagate ask failures, got %v", err)
	}
	snap := sess.Snapshot()
	if snap.Awaiting {
		t.Fatal("loading must return to false")
	}
	if snap.LastError == "" || !strings.Contains(snap.LastError, "internal error") {
		t.Fatalf("error banner text = %q", snap.LastError)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected user + error reply, got %d messages", len(snap.Messages))
	}
	reply := snap.Messages[1]
	if reply.Role != domain.RoleAssistant {
		t.Fatalf("error reply role = %q", reply.Role)
	}
	if !strings.Contains(reply.Content, "internal error") {
		t.Fatalf("error reply must contain the error text, got %q", reply.Content)
	}
	if !strings.Contains(reply.Content, "Maaf") {
		t.Fatalf("error reply should be apologetic, got %q", reply.Content)
	}
}

func TestSessionIdleAfterFailureAllowsRetry(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	sess := newTestSession(client)

	if err := sess.Submit(context.Background(), "q"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	client.mu.Lock()
	client.err = nil
	client.answer = domain.Answer{Text: "recovered", Model: domain.ModelGroq}
	client.mu.Unlock()

	if err := sess.Submit(context.Background(), "q again"); err != nil {
		t.Fatalf("manual retry must be allowed, got %v", err)
	}
	snap := sess.Snapshot()
	if got := snap.Messages[len(snap.Messages)-1].Content; got != "recovered" {
		t.Fatalf("retry answer = %q", got)
	}
}

func TestDismissErrorIsIdempotent(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	sess := newTestSession(client)
	_ = sess.Submit(context.Background(), "q")

	before := sess.Snapshot()
	sess.DismissError()
	after := sess.Snapshot()
	if after.LastError != "" {
		t.Fatalf("error not cleared: %q", after.LastError)
	}
	if len(after.Messages) != len(before.Messages) {
		t.Fatal("dismiss must not touch the transcript")
	}

	sess.DismissError() // already clear
	if got := sess.Snapshot(); got.LastError != "" || len(got.Messages) != len(before.Messages) {
		t.Fatal("dismiss on a clear session must be a no-op")
	}
}

func TestSubmitCarriesSelectedModel(t *testing.T) {
	client := &fakeClient{answer: domain.Answer{Text: "ok", Model: domain.ModelGemini}}
	sess := newTestSession(client)
	if err := sess.SelectModel(domain.ModelGemini); err != nil {
		t.Fatalf("select model: %v", err)
	}

	if err := sess.Submit(context.Background(), "Data inflasi Sumut"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 1 {
		t.Fatalf("expected one ask, got %d", len(client.calls))
	}
	if client.calls[0].question != "Data inflasi Sumut" || client.calls[0].model != domain.ModelGemini {
		t.Fatalf("unexpected ask: %+v", client.calls[0])
	}
}

func TestSelectModelIgnoredWhileAwaiting(t *testing.T) {
	client := &fakeClient{
		answer: domain.Answer{Text: "ok", Model: domain.ModelGroq},
		block:  make(chan struct{}),
	}
	sess := newTestSession(client)

	done := make(chan error, 1)
	go func() { done <- sess.Submit(context.Background(), "q") }()

	deadline := time.After(2 * time.Second)
	for !sess.Snapshot().Awaiting {
		select {
		case <-deadline:
			t.Fatal("session never entered the awaiting state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if err := sess.SelectModel(domain.ModelGemini); err != nil {
		t.Fatalf("select while awaiting: %v", err)
	}
	close(client.block)
	<-done

	if got := sess.Snapshot().Model; got != domain.ModelGroq {
		t.Fatalf("model changed while awaiting: %q", got)
	}
}

func TestSelectModelRejectsUnknown(t *testing.T) {
	sess := newTestSession(&fakeClient{})
	if err := sess.SelectModel(domain.Model("gpt4")); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestQuickFillBehavesLikeManualSubmit(t *testing.T) {
	client := &fakeClient{answer: domain.Answer{Text: "jawaban", Model: domain.ModelGroq}}
	sess := newTestSession(client)

	if err := sess.QuickFill(context.Background(), "Tingkat kemiskinan"); err != nil {
		t.Fatalf("quick fill: %v", err)
	}
	client.mu.Lock()
	call := client.calls[0]
	client.mu.Unlock()
	if call.question != "Tingkat kemiskinan" || call.model != domain.ModelGroq {
		t.Fatalf("unexpected ask: %+v", call)
	}
	snap := sess.Snapshot()
	if snap.Input != "" {
		t.Fatalf("input not cleared: %q", snap.Input)
	}
	if len(snap.Messages) != 2 || snap.Messages[0].Content != "Tingkat kemiskinan" {
		t.Fatalf("unexpected transcript: %+v", snap.Messages)
	}
}

func TestCompletedExchangeIsRecorded(t *testing.T) {
	recorder := &fakeRecorder{}
	client := &fakeClient{answer: domain.Answer{Text: "ok", Model: domain.ModelGroq}}
	sess := New("sess-rec", domain.ModelGroq, client, recorder)

	if err := sess.Submit(context.Background(), "q"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.batches) != 1 || len(recorder.batches[0]) != 2 {
		t.Fatalf("expected one recorded pair, got %+v", recorder.batches)
	}
	if recorder.batches[0][0].Role != domain.RoleUser || recorder.batches[0][1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected recorded roles: %+v", recorder.batches[0])
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	client := &fakeClient{answer: domain.Answer{Text: "ok", Model: domain.ModelGroq}}
	sess := newTestSession(client)
	_ = sess.Submit(context.Background(), "q")

	snap := sess.Snapshot()
	snap.Messages[0].Content = "tampered"
	if sess.Snapshot().Messages[0].Content != "q" {
		t.Fatal("snapshot must not alias internal state")
	}
}
