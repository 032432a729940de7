// Package faketransport is a scripted transport.Transport for tests.
package faketransport

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/domain/models"
)

// ErrUpstream is the error returned for scripted DeleteFailed results.
var ErrUpstream = errors.New("upstream unavailable")

// Sent records one SendArtifact call.
type Sent struct {
	To  transport.Target
	Ref models.ArtifactRef
}

// Transport returns DeleteOK unless a result is queued with
// QueueDelete. It records every call.
type Transport struct {
	mu      sync.Mutex
	queue   []transport.DeleteResult
	sendErr error
	sent    []Sent
	deleted []models.ArtifactRef
	gone    map[int]bool

	// Gate, when set, is received from before each DeleteArtifact returns,
	// letting a test hold a delete in flight.
	Gate chan struct{}
	// Entered, when set, is sent to as each DeleteArtifact starts.
	Entered chan struct{}
}

func New() *Transport { return &Transport{gone: map[int]bool{}} }

// QueueDelete scripts the results of the next DeleteArtifact calls in order.
func (t *Transport) QueueDelete(results ...transport.DeleteResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, results...)
}

// FailSends makes every SendArtifact return err until cleared with nil.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

func (t *Transport) SendArtifact(ctx context.Context, to transport.Target, ref models.ArtifactRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, Sent{To: to, Ref: ref})
	return nil
}

func (t *Transport) DeleteArtifact(ctx context.Context, ref models.ArtifactRef) (transport.DeleteResult, error) {
	if t.Entered != nil {
		t.Entered <- struct{}{}
	}
	if t.Gate != nil {
		select {
		case <-t.Gate:
		case <-ctx.Done():
			return transport.DeleteFailed, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	res := transport.DeleteOK
	if len(t.queue) > 0 {
		res, t.queue = t.queue[0], t.queue[1:]
	}
	if res == transport.DeleteOK && t.gone[ref.MessageID] {
		res = transport.DeleteNotFound
	}
	t.deleted = append(t.deleted, ref)
	switch res {
	case transport.DeleteFailed:
		return res, ErrUpstream
	case transport.DeleteOK:
		t.gone[ref.MessageID] = true
	}
	return res, nil
}

// Sent returns every delivered copy in call order.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// DeleteCalls returns how many DeleteArtifact calls completed.
func (t *Transport) DeleteCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deleted)
}

// Gone reports whether the message was removed by a successful delete.
func (t *Transport) Gone(messageID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gone[messageID]
}
