package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"statchat/pkg/domain"
)

// Client calls the retrieval-augmented answer API over HTTP. One request is
// issued per Ask; the caller enforces single-flight.
type Client struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

// APIError represents a transport-level failure: the answer API replied with
// a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("answer api: status %d: %s", e.Status, e.Message)
}

// DecodeError represents a malformed 2xx response body: unparseable JSON or
// a missing answer field.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "answer api: " + e.Reason
}

// NewClient constructs an answer API client. topK <= 0 leaves the server
// default in place. The timeout bounds the whole exchange so a hung upstream
// cannot pin a session in the awaiting state forever.
func NewClient(baseURL string, topK int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topK:       topK,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type askRequest struct {
	Question string `json:"question"`
	UseRAG   bool   `json:"use_rag"`
	Model    string `json:"model"`
	TopK     int    `json:"top_k,omitempty"`
}

type askMetadata struct {
	Model          string   `json:"model"`
	OriginalQuery  string   `json:"original_query"`
	ExpandedQuery  string   `json:"expanded_query"`
	SearchKeyword  string   `json:"search_keyword"`
	TimeReferences []string `json:"time_references"`
	FoundDocuments int      `json:"found_documents"`
}

type askResponse struct {
	Answer   *string         `json:"answer"`
	Sources  []domain.Source `json:"sources"`
	Metadata *askMetadata    `json:"metadata"`
}

// Ask sends one question and decodes the answer. model is the session's
// currently selected model; the response metadata may override it.
func (c *Client) Ask(ctx context.Context, question string, model domain.Model) (domain.Answer, error) {
	payload := askRequest{
		Question: question,
		UseRAG:   true,
		Model:    string(model),
		TopK:     c.topK,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Answer{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return domain.Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Answer{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Answer{}, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp),
		}
	}

	var body askResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		return domain.Answer{}, &DecodeError{Reason: "invalid JSON body"}
	}
	if body.Answer == nil {
		return domain.Answer{}, &DecodeError{Reason: "response is missing an answer"}
	}
	// Answers, like source abstracts, can arrive with markup baked in.
	text := plainText(*body.Answer)
	if text == "" {
		return domain.Answer{}, &DecodeError{Reason: "response is missing an answer"}
	}

	answer := domain.Answer{
		Text:    text,
		Sources: sanitizeSources(body.Sources),
		Model:   model,
	}
	if body.Metadata != nil {
		if m := domain.Model(body.Metadata.Model); m.Known() {
			answer.Model = m
		}
		answer.Metadata = queryMetadata(body.Metadata)
	}
	return answer, nil
}

// errorMessage extracts a human-readable message from a failed response. A
// JSON {"error": ...} body wins; otherwise the HTTP status text is used.
func errorMessage(resp *http.Response) string {
	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp)
	if errResp.Error != "" {
		return errResp.Error
	}
	if errResp.Detail != "" {
		return errResp.Detail
	}
	return resp.Status
}

// queryMetadata maps the wire metadata block onto the domain value, dropping
// it entirely when no query expansion happened.
func queryMetadata(m *askMetadata) *domain.QueryMetadata {
	if m.OriginalQuery == "" && m.ExpandedQuery == "" && m.SearchKeyword == "" &&
		len(m.TimeReferences) == 0 && m.FoundDocuments == 0 {
		return nil
	}
	return &domain.QueryMetadata{
		OriginalQuery:  m.OriginalQuery,
		ExpandedQuery:  m.ExpandedQuery,
		SearchKeyword:  m.SearchKeyword,
		TimeReferences: m.TimeReferences,
		FoundDocuments: m.FoundDocuments,
	}
}

func sanitizeSources(sources []domain.Source) []domain.Source {
	if sources == nil {
		return []domain.Source{}
	}
	out := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		src.Abstract = plainText(src.Abstract)
		out = append(out, src)
	}
	return out
}
