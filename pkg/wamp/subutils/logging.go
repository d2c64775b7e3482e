package subutils

import (
	"context"

	"github.com/tsarna/wamplink/pkg/wamp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingSubscriber wraps another subscriber and logs all calls.
// If the wrapped subscriber is nil, it acts as a standalone logging subscriber.
type LoggingSubscriber struct {
	wrapped  wamp.Subscriber
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string
}

// NewLoggingSubscriber creates a new LoggingSubscriber that wraps another subscriber.
func NewLoggingSubscriber(wrapped wamp.Subscriber, logger *zap.Logger, logLevel zapcore.Level) *LoggingSubscriber {
	return NewNamedLoggingSubscriber(wrapped, logger, logLevel, "LoggingSubscriber")
}

// NewNamedLoggingSubscriber creates a new LoggingSubscriber with a custom name
// used to identify it in logs.
func NewNamedLoggingSubscriber(wrapped wamp.Subscriber, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSubscriber{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

func (l *LoggingSubscriber) OnSubscribe(ctx context.Context, topic wamp.URI) error {
	l.logger.Log(l.logLevel, "OnSubscribe called",
		zap.String("subscriber", l.name),
		zap.String("topic", string(topic)),
	)

	if l.wrapped != nil {
		return l.wrapped.OnSubscribe(ctx, topic)
	}
	return nil
}

func (l *LoggingSubscriber) OnUnsubscribe(ctx context.Context, topic wamp.URI) error {
	l.logger.Log(l.logLevel, "OnUnsubscribe called",
		zap.String("subscriber", l.name),
		zap.String("topic", string(topic)),
	)

	if l.wrapped != nil {
		return l.wrapped.OnUnsubscribe(ctx, topic)
	}
	return nil
}

func (l *LoggingSubscriber) OnEvent(ctx context.Context, topic wamp.URI, event *wamp.Event) error {
	fields := []zap.Field{
		zap.String("subscriber", l.name),
		zap.String("topic", string(topic)),
	}
	if event != nil {
		fields = append(fields,
			zap.Uint64("subscription", uint64(event.Subscription)),
			zap.Uint64("publication", uint64(event.Publication)),
			zap.Any("args", event.Arguments),
			zap.Any("kwargs", event.ArgumentsKw),
		)
	}
	l.logger.Log(l.logLevel, "OnEvent called", fields...)

	if l.wrapped != nil {
		return l.wrapped.OnEvent(ctx, topic, event)
	}
	return nil
}
