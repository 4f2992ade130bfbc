package api

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn. Messages are treated as
// immutable once sent.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of messages. Order is chronological
// and is the context the model sees.
type Conversation []Message

// System returns the first system message, if any.
func (c Conversation) System() (Message, bool) {
	for _, m := range c {
		if m.Role == RoleSystem {
			return m, true
		}
	}
	return Message{}, false
}

// WithoutSystem returns a copy of c with every system message removed.
func (c Conversation) WithoutSystem() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// ChatRequest is the body accepted by the relay endpoint.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming relay response body.
type ChatResponse struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// Session is a persisted chat conversation.
type Session struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// CreateSessionRequest is the body accepted when creating a session.
type CreateSessionRequest struct {
	Title  string `json:"title,omitempty"`
	System string `json:"system,omitempty"`
}

// SessionList holds a paginated list of sessions. Messages are omitted
// from listed sessions.
type SessionList struct {
	Object  string     `json:"object"`
	Data    []*Session `json:"data"`
	HasMore bool       `json:"has_more"`
	FirstID string     `json:"first_id"`
	LastID  string     `json:"last_id"`
}
