package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Model identifies which backend model answers questions.
type Model string

const (
	ModelGroq   Model = "groq"
	ModelGemini Model = "gemini"
)

// Known reports whether the model id is one the answer API accepts.
func (m Model) Known() bool {
	switch m {
	case ModelGroq, ModelGemini:
		return true
	}
	return false
}

// Source is a cited document returned alongside an answer. It has no
// identity beyond its position in a message's source list.
type Source struct {
	Title       string  `json:"title"`
	Abstract    string  `json:"abstract"`
	Link        string  `json:"link"`
	File        string  `json:"file,omitempty"`
	ReleaseDate string  `json:"release_date"`
	Similarity  float64 `json:"similarity"`
	SourceType  string  `json:"source_type,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// QueryMetadata carries query-expansion diagnostics from the answer API.
// Present only on assistant messages produced via query expansion.
type QueryMetadata struct {
	OriginalQuery  string   `json:"original_query,omitempty"`
	ExpandedQuery  string   `json:"expanded_query,omitempty"`
	SearchKeyword  string   `json:"search_keyword,omitempty"`
	TimeReferences []string `json:"time_references,omitempty"`
	FoundDocuments int      `json:"found_documents,omitempty"`
}

// Message is one transcript entry. Immutable once appended.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Model     Model          `json:"model,omitempty"`
	Sources   []Source       `json:"sources,omitempty"`
	Metadata  *QueryMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SessionState is a point-in-time snapshot of one chat session. The UI is a
// direct rendering of this value.
type SessionState struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Messages  []Message `json:"messages"`
	Awaiting  bool      `json:"awaiting"`
	LastError string    `json:"lastError,omitempty"`
	Model     Model     `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Answer is a decoded successful response from the answer API.
type Answer struct {
	Text     string
	Sources  []Source
	Model    Model
	Metadata *QueryMetadata
}
