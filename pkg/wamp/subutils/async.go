package subutils

import (
	"context"
	"errors"
	"sync"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// Error definitions for AsyncQueueingSubscriber
var (
	ErrQueueFull        = errors.New("subscriber queue is full")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

type asyncKind int

const (
	asyncSubscribe asyncKind = iota
	asyncUnsubscribe
	asyncEvent
)

type asyncMessage struct {
	ctx   context.Context
	kind  asyncKind
	topic wamp.URI
	event *wamp.Event
}

// AsyncQueueingSubscriber wraps another subscriber and processes its calls
// in a background goroutine, in the order they were queued. The client gives
// every subscription its own queue so that a slow sink never stalls another
// subscription.
//
// By default a full queue rejects new calls with ErrQueueFull. A blocking
// queue instead waits for room until the caller's context is done.
type AsyncQueueingSubscriber struct {
	wrapped  wamp.Subscriber
	queue    chan asyncMessage
	blocking bool

	// mu is held for reading while a call is queued and for writing while
	// closing, so nothing is queued after the final drain.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncQueueingSubscriber creates a new AsyncQueueingSubscriber that
// processes calls asynchronously through a buffered channel of the specified
// size.
//
// Example:
//
//	asyncSubscriber := subutils.NewAsyncQueueingSubscriber(mySubscriber, 100).Start()
//	defer asyncSubscriber.Close()
//
// Close must be called to stop the background goroutine; it processes what is
// still queued before returning.
func NewAsyncQueueingSubscriber(wrapped wamp.Subscriber, queueSize int) *AsyncQueueingSubscriber {
	if queueSize <= 0 {
		queueSize = 100 // Default queue size
	}

	return &AsyncQueueingSubscriber{
		wrapped: wrapped,
		queue:   make(chan asyncMessage, queueSize),
		done:    make(chan struct{}),
	}
}

// WithBlocking makes a full queue wait for room instead of rejecting calls.
// It must be called before Start.
func (a *AsyncQueueingSubscriber) WithBlocking(blocking bool) *AsyncQueueingSubscriber {
	a.blocking = blocking
	return a
}

// Start begins processing messages in a background goroutine.
func (a *AsyncQueueingSubscriber) Start() *AsyncQueueingSubscriber {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncQueueingSubscriber) processMessage(msg asyncMessage) {
	switch msg.kind {
	case asyncSubscribe:
		a.wrapped.OnSubscribe(msg.ctx, msg.topic)
	case asyncUnsubscribe:
		a.wrapped.OnUnsubscribe(msg.ctx, msg.topic)
	case asyncEvent:
		a.wrapped.OnEvent(msg.ctx, msg.topic, msg.event)
	}
}

func (a *AsyncQueueingSubscriber) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.queue:
			a.processMessage(msg)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) drainQueue() {
	for {
		select {
		case msg := <-a.queue:
			a.processMessage(msg)
		default:
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) enqueue(msg asyncMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSubscriberClosed
	}

	select {
	case a.queue <- msg:
		return nil
	default:
	}
	if !a.blocking {
		return ErrQueueFull
	}

	select {
	case a.queue <- msg:
		return nil
	case <-msg.ctx.Done():
		return msg.ctx.Err()
	}
}

// OnSubscribe queues a subscribe notification.
func (a *AsyncQueueingSubscriber) OnSubscribe(ctx context.Context, topic wamp.URI) error {
	return a.enqueue(asyncMessage{ctx: ctx, kind: asyncSubscribe, topic: topic})
}

// OnUnsubscribe queues an unsubscribe notification.
func (a *AsyncQueueingSubscriber) OnUnsubscribe(ctx context.Context, topic wamp.URI) error {
	return a.enqueue(asyncMessage{ctx: ctx, kind: asyncUnsubscribe, topic: topic})
}

// OnEvent queues an event. When the queue has no room it returns
// ErrQueueFull, or for a blocking queue waits until there is room or ctx is
// done.
func (a *AsyncQueueingSubscriber) OnEvent(ctx context.Context, topic wamp.URI, event *wamp.Event) error {
	return a.enqueue(asyncMessage{ctx: ctx, kind: asyncEvent, topic: topic, event: event})
}

// Close stops the background goroutine after processing everything still in
// the queue. It must not be called from within the wrapped subscriber.
func (a *AsyncQueueingSubscriber) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.done)
		a.mu.Unlock()
		a.wg.Wait()

		// Covers a subscriber that was never started.
		a.drainQueue()
	})
	return nil
}

// QueueSize returns the current number of messages in the queue
func (a *AsyncQueueingSubscriber) QueueSize() int {
	return len(a.queue)
}

// QueueCapacity returns the maximum capacity of the queue
func (a *AsyncQueueingSubscriber) QueueCapacity() int {
	return cap(a.queue)
}

// IsClosed returns true if the subscriber has been closed
func (a *AsyncQueueingSubscriber) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
