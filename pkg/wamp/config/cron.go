package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NewScheduler returns a cron scheduler that accepts five or six field
// schedules (seconds optional) and descriptors such as "@every 10s". An empty
// timezone means the local zone.
func NewScheduler(logger *zap.Logger, timezone string) (*cron.Cron, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timezone == "" {
		timezone = "Local"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	return cron.New(
		cron.WithLogger(NewZapCronLogger(logger)),
		cron.WithParser(scheduleParser),
		cron.WithLocation(location),
	), nil
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule checks a schedule without creating a scheduler.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

/// ZapCronLogger

// ZapCronLogger adapts a zap.Logger to implement the cron.Logger interface
type ZapCronLogger struct {
	logger *zap.Logger
}

// NewZapCronLogger creates a new ZapCronLogger that wraps the given zap.Logger
func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	return &ZapCronLogger{logger: logger}
}

// Info logs cron's routine chatter at debug level.
func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, cronFields(keysAndValues)...)
}

func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, append(cronFields(keysAndValues), zap.Error(err))...)
}

func cronFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
