package agentcore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSessionNotFound is returned by Store implementations when no session
// exists for the requested ID.
var ErrSessionNotFound = errors.New("agentcore: session not found")

// Metrics aggregates what a session has consumed so far.
type Metrics struct {
	Turns     int             `json:"turns"`
	ToolCalls int             `json:"tool_calls"`
	Usage     Usage           `json:"usage"`
	Cost      decimal.Decimal `json:"cost"`
}

// Session is the persistable state of one conversation: the append-only
// message history plus accumulated metrics. The pipeline is the only writer
// while an execution is running.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        generateID(PrefixSession),
		Metrics:   Metrics{Cost: decimal.Zero},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy. Message payloads are value types, so copying
// the slice headers is enough except for the history slice itself.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// Store persists sessions. Implementations live in the session package;
// Load returns ErrSessionNotFound for unknown IDs.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}
