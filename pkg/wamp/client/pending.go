package client

import (
	"fmt"
	"sync"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// maxCanceled bounds how many canceled request ids are remembered so that
// their late responses can be told apart from unexpected ones.
const maxCanceled = 1024

type category int

const (
	categoryCall category = iota + 1
	categoryRegister
	categoryUnregister
	categorySubscribe
	categoryUnsubscribe
	categoryPublish
)

func (c category) String() string {
	switch c {
	case categoryCall:
		return "call"
	case categoryRegister:
		return "register"
	case categoryUnregister:
		return "unregister"
	case categorySubscribe:
		return "subscribe"
	case categoryUnsubscribe:
		return "unsubscribe"
	case categoryPublish:
		return "publish"
	}
	return "unknown"
}

// categoryOf maps a response, or the request type named by an ERROR, to the
// category of the request it answers.
func categoryOf(t wamp.MessageType) (category, bool) {
	switch t {
	case wamp.MessageTypeCall, wamp.MessageTypeResult:
		return categoryCall, true
	case wamp.MessageTypeRegister, wamp.MessageTypeRegistered:
		return categoryRegister, true
	case wamp.MessageTypeUnregister, wamp.MessageTypeUnregistered:
		return categoryUnregister, true
	case wamp.MessageTypeSubscribe, wamp.MessageTypeSubscribed:
		return categorySubscribe, true
	case wamp.MessageTypeUnsubscribe, wamp.MessageTypeUnsubscribed:
		return categoryUnsubscribe, true
	case wamp.MessageTypePublish, wamp.MessageTypePublished:
		return categoryPublish, true
	}
	return 0, false
}

// outcome is what a pending request completes with: the router's response
// (which may be an ERROR) or a local error.
type outcome struct {
	msg wamp.Message
	err error
}

type pendingRequest struct {
	id       wamp.ID
	category category
	done     chan outcome

	// Prepared by the caller, installed by the dispatcher on success.
	subscription *Subscription
	registration *Registration
}

// fulfill completes the request. It never blocks: done has room for exactly
// one outcome and each request is taken out of the registry only once.
func (r *pendingRequest) fulfill(out outcome) {
	select {
	case r.done <- out:
	default:
	}
}

type completion int

const (
	completed completion = iota
	discarded
	unknown
	mismatch
)

// pendingRegistry correlates outstanding requests with their responses.
type pendingRegistry struct {
	mu            sync.Mutex
	entries       map[wamp.ID]*pendingRequest
	canceled      map[wamp.ID]struct{}
	canceledOrder []wamp.ID
	closedErr     error
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		entries:  make(map[wamp.ID]*pendingRequest),
		canceled: make(map[wamp.ID]struct{}),
	}
}

func newPendingRequest(cat category, id wamp.ID) *pendingRequest {
	return &pendingRequest{id: id, category: cat, done: make(chan outcome, 1)}
}

func (p *pendingRegistry) add(req *pendingRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closedErr != nil {
		return p.closedErr
	}
	if _, exists := p.entries[req.id]; exists {
		return fmt.Errorf("%w: %d", wamp.ErrDuplicateRequestID, req.id)
	}

	p.entries[req.id] = req
	return nil
}

// take removes the request with the given id if it is of category cat. The
// caller fulfills it.
func (p *pendingRegistry) take(id wamp.ID, cat category) (*pendingRequest, completion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, exists := p.entries[id]
	if !exists {
		if _, wasCanceled := p.canceled[id]; wasCanceled {
			delete(p.canceled, id)
			return nil, discarded
		}
		return nil, unknown
	}
	if req.category != cat {
		return req, mismatch
	}

	delete(p.entries, id)
	return req, completed
}

// complete takes and fulfills the request in one step.
func (p *pendingRegistry) complete(id wamp.ID, cat category, out outcome) completion {
	req, result := p.take(id, cat)
	if result == completed {
		req.fulfill(out)
	}
	return result
}

// cancel withdraws a request. It returns false if the request was no longer
// pending, in which case its outcome is already in flight to the caller.
func (p *pendingRegistry) cancel(id wamp.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; !exists {
		return false
	}
	delete(p.entries, id)
	p.rememberCanceled(id)
	return true
}

// remove forgets a request that was never sent.
func (p *pendingRegistry) remove(id wamp.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// markCanceled makes a response to id, which has no pending entry, count as
// discarded rather than unknown.
func (p *pendingRegistry) markCanceled(id wamp.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rememberCanceled(id)
}

func (p *pendingRegistry) rememberCanceled(id wamp.ID) {
	p.canceled[id] = struct{}{}
	p.canceledOrder = append(p.canceledOrder, id)

	for len(p.canceledOrder) > maxCanceled {
		delete(p.canceled, p.canceledOrder[0])
		p.canceledOrder = p.canceledOrder[1:]
	}
}

func (p *pendingRegistry) isCanceled(id wamp.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.canceled[id]
	return ok
}

// drain fails every pending request with err and rejects further additions.
func (p *pendingRegistry) drain(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closedErr = err
	n := len(p.entries)
	for id, req := range p.entries {
		delete(p.entries, id)
		req.fulfill(outcome{err: err})
	}
	p.canceled = make(map[wamp.ID]struct{})
	p.canceledOrder = nil
	return n
}

func (p *pendingRegistry) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
