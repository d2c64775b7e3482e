package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
	"go.uber.org/zap"
)

type subscriptionKey struct {
	topic wamp.URI
	match wamp.MatchPolicy
}

// BindingTracker is a Monitor that remembers the subscriptions and
// registrations a client has made, so they can be restored on a new session.
type BindingTracker struct {
	mu            sync.Mutex
	connected     bool
	subscriptions map[subscriptionKey]*Subscription
	registrations map[wamp.URI]*Registration
}

// NewBindingTracker creates an empty tracker.
func NewBindingTracker() *BindingTracker {
	return &BindingTracker{
		subscriptions: make(map[subscriptionKey]*Subscription),
		registrations: make(map[wamp.URI]*Registration),
	}
}

func (t *BindingTracker) OnConnect(ctx context.Context, client Connector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
}

func (t *BindingTracker) OnDisconnect(ctx context.Context, client Connector, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *BindingTracker) OnSubscribe(ctx context.Context, client Connector, sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscriptions[subscriptionKey{sub.Topic, sub.Match}] = sub
}

func (t *BindingTracker) OnUnsubscribe(ctx context.Context, client Connector, sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := subscriptionKey{sub.Topic, sub.Match}
	if t.subscriptions[key] == sub {
		delete(t.subscriptions, key)
	}
}

func (t *BindingTracker) OnRegister(ctx context.Context, client Connector, reg *Registration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registrations[reg.Procedure] = reg
}

func (t *BindingTracker) OnUnregister(ctx context.Context, client Connector, reg *Registration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registrations[reg.Procedure] == reg {
		delete(t.registrations, reg.Procedure)
	}
}

// IsConnected reports whether the client's session is established.
func (t *BindingTracker) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// IsSubscribedTo reports whether an exact or policy-matched subscription to
// topic is being tracked.
func (t *BindingTracker) IsSubscribedTo(topic wamp.URI, match wamp.MatchPolicy) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subscriptions[subscriptionKey{topic, match}]
	return ok
}

func (t *BindingTracker) GetSubscriptionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscriptions)
}

func (t *BindingTracker) GetRegistrationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.registrations)
}

func (t *BindingTracker) snapshot() ([]*Subscription, []*Registration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := make([]*Subscription, 0, len(t.subscriptions))
	for _, sub := range t.subscriptions {
		subs = append(subs, sub)
	}
	regs := make([]*Registration, 0, len(t.registrations))
	for _, reg := range t.registrations {
		regs = append(regs, reg)
	}
	return subs, regs
}

// Restore re-creates every tracked subscription and registration on client's
// current session. It returns the first error but attempts all of them.
func (t *BindingTracker) Restore(ctx context.Context, client Connector) error {
	subs, regs := t.snapshot()

	var errs []error
	for _, sub := range subs {
		options := sub.Options.Clone()
		delete(options, "match")
		if _, err := client.Subscribe(ctx, sub.Topic, sub.Match, sub.Subscriber, options); err != nil {
			errs = append(errs, err)
		}
	}
	for _, reg := range regs {
		if _, err := client.Register(ctx, reg.Procedure, reg.Handler, reg.Options.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AutoReconnector is a Monitor that reconnects with exponential backoff when
// a session ends with an error, then restores its subscriptions and
// registrations. Sessions closed by Disconnect are not re-established.
type AutoReconnector struct {
	*BindingTracker

	initialDelay  time.Duration
	maxDelay      time.Duration
	backoffFactor float64
	maxRetries    int // -1 for unlimited
	logger        *zap.Logger

	mu                sync.Mutex
	enabled           bool
	reconnecting      bool
	reconnectCount    int
	lastReconnectTime time.Time
	lastError         error
	wg                sync.WaitGroup
}

// AutoReconnectorBuilder provides a fluent interface for AutoReconnector.
type AutoReconnectorBuilder struct {
	initialDelay  time.Duration
	maxDelay      time.Duration
	backoffFactor float64
	maxRetries    int
	enabled       bool
	logger        *zap.Logger
}

// NewAutoReconnector creates a builder with 1s initial delay, 30s maximum
// delay, a backoff factor of 2 and unlimited retries.
func NewAutoReconnector() *AutoReconnectorBuilder {
	return &AutoReconnectorBuilder{
		initialDelay:  1 * time.Second,
		maxDelay:      30 * time.Second,
		backoffFactor: 2.0,
		maxRetries:    -1,
		enabled:       true,
		logger:        zap.NewNop(),
	}
}

// WithInitialDelay sets the delay before the first attempt. Non-positive
// values are ignored.
func (b *AutoReconnectorBuilder) WithInitialDelay(delay time.Duration) *AutoReconnectorBuilder {
	if delay > 0 {
		b.initialDelay = delay
	}
	return b
}

// WithMaxDelay caps the delay between attempts. Non-positive values are
// ignored.
func (b *AutoReconnectorBuilder) WithMaxDelay(delay time.Duration) *AutoReconnectorBuilder {
	if delay > 0 {
		b.maxDelay = delay
	}
	return b
}

// WithBackoffFactor sets the growth of the delay per attempt. Values below 1
// are ignored.
func (b *AutoReconnectorBuilder) WithBackoffFactor(factor float64) *AutoReconnectorBuilder {
	if factor >= 1.0 {
		b.backoffFactor = factor
	}
	return b
}

// WithMaxRetries limits the number of attempts; -1 means unlimited.
func (b *AutoReconnectorBuilder) WithMaxRetries(retries int) *AutoReconnectorBuilder {
	if retries >= -1 {
		b.maxRetries = retries
	}
	return b
}

func (b *AutoReconnectorBuilder) WithEnabled(enabled bool) *AutoReconnectorBuilder {
	b.enabled = enabled
	return b
}

func (b *AutoReconnectorBuilder) WithLogger(logger *zap.Logger) *AutoReconnectorBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *AutoReconnectorBuilder) Build() *AutoReconnector {
	return &AutoReconnector{
		BindingTracker: NewBindingTracker(),
		initialDelay:   b.initialDelay,
		maxDelay:       b.maxDelay,
		backoffFactor:  b.backoffFactor,
		maxRetries:     b.maxRetries,
		enabled:        b.enabled,
		logger:         b.logger,
	}
}

func (r *AutoReconnector) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled turns reconnection on or off. Disabling stops a reconnect loop
// in progress before its next attempt.
func (r *AutoReconnector) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *AutoReconnector) GetReconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnectCount
}

func (r *AutoReconnector) GetLastReconnectTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReconnectTime
}

func (r *AutoReconnector) GetLastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Wait blocks until no reconnect loop is running.
func (r *AutoReconnector) Wait() {
	r.wg.Wait()
}

func (r *AutoReconnector) OnDisconnect(ctx context.Context, client Connector, err error) {
	r.BindingTracker.OnDisconnect(ctx, client, err)

	r.mu.Lock()
	r.lastError = err
	start := err != nil && r.enabled && !r.reconnecting
	if start {
		r.reconnecting = true
		r.wg.Add(1)
	}
	r.mu.Unlock()

	if err == nil {
		r.logger.Info("Client disconnected, not reconnecting")
		return
	}
	if start {
		r.logger.Warn("Client disconnected, reconnecting", zap.Error(err))
		go r.reconnectLoop(client)
	}
}

func (r *AutoReconnector) reconnectLoop(client Connector) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	ctx := context.Background()
	delay := r.initialDelay

	for attempt := 1; r.maxRetries < 0 || attempt <= r.maxRetries; attempt++ {
		time.Sleep(delay)
		if !r.IsEnabled() {
			r.logger.Info("Reconnection disabled, stopping")
			return
		}

		r.mu.Lock()
		r.reconnectCount++
		r.lastReconnectTime = time.Now()
		r.mu.Unlock()

		err := client.Connect(ctx)
		if err == nil || errors.Is(err, wamp.ErrAlreadyConnected) {
			r.logger.Info("Reconnected", zap.Int("attempt", attempt))
			if err := r.Restore(ctx, client); err != nil {
				r.logger.Warn("Failed to restore some subscriptions or registrations", zap.Error(err))
			}
			return
		}

		r.mu.Lock()
		r.lastError = err
		r.mu.Unlock()
		r.logger.Warn("Reconnect attempt failed", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		delay = time.Duration(float64(delay) * r.backoffFactor)
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}

	r.logger.Error("Giving up reconnecting", zap.Int("max_retries", r.maxRetries))
}
