package policy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Approval broker errors.
var (
	ErrApprovalTimeout = errors.New("policy: approval request timed out")
	ErrUnknownRequest  = errors.New("policy: unknown approval request")
	ErrAlreadyDecided  = errors.New("policy: approval request already decided")
)

// Request is a pending approval for one suspended tool call. Requests are
// read by an external approver through Broker.Pending.
type Request struct {
	Token     string
	CallID    string
	ToolName  string
	Args      json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Outcome is the external decision for a suspended call.
type Outcome struct {
	Approved  bool
	Reason    string
	DecidedBy string
}

type pendingRequest struct {
	req     Request
	decided chan Outcome // buffered, written at most once
}

// Broker suspends tool calls that require approval and delivers external
// decisions back to the dispatcher. Other calls in the same batch proceed
// independently while a request is pending. Safe for concurrent use.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{pending: make(map[string]*pendingRequest)}
}

// Await registers an approval request and blocks until an external decision
// arrives, the ttl elapses, or ctx is cancelled. Timeouts are reported as a
// denial with ErrApprovalTimeout; ctx cancellation returns ctx.Err().
func (b *Broker) Await(ctx context.Context, callID, toolName string, args json.RawMessage, ttl time.Duration) (Outcome, error) {
	now := time.Now()
	p := &pendingRequest{
		req: Request{
			Token:     "appr_" + uuid.NewString(),
			CallID:    callID,
			ToolName:  toolName,
			Args:      args,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		},
		decided: make(chan Outcome, 1),
	}

	b.mu.Lock()
	b.pending[p.req.Token] = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, p.req.Token)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case outcome := <-p.decided:
		return outcome, nil
	case <-timer.C:
		return Outcome{}, ErrApprovalTimeout
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Pending returns a snapshot of all undecided requests.
func (b *Broker) Pending() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	return out
}

// Approve resolves a pending request affirmatively.
func (b *Broker) Approve(token, decidedBy string) error {
	return b.resolve(token, Outcome{Approved: true, DecidedBy: decidedBy})
}

// Deny resolves a pending request negatively with a reason.
func (b *Broker) Deny(token, decidedBy, reason string) error {
	return b.resolve(token, Outcome{Approved: false, DecidedBy: decidedBy, Reason: reason})
}

func (b *Broker) resolve(token string, outcome Outcome) error {
	b.mu.Lock()
	p, ok := b.pending[token]
	if ok {
		delete(b.pending, token)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownRequest
	}
	select {
	case p.decided <- outcome:
		return nil
	default:
		return ErrAlreadyDecided
	}
}
