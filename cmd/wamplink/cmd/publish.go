package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/client"
	"github.com/tsarna/wamplink/pkg/wamp/config"
	"go.uber.org/zap"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <url> <realm> <topic> [args...]",
	Short: "Publish an event to a topic",
	Long: `Publish an event to a topic on a WAMP router.

Arguments after the topic are positional arguments. Each is parsed as JSON,
and used as a plain string if it is not valid JSON.

With --cron the event is published on a schedule until interrupted. Schedules
take five or six fields (seconds optional) or descriptors like "@every 10s".

Examples:
  wamplink publish ws://localhost:8080/ws realm1 com.example.temperature 25.5
  wamplink publish ws://localhost:8080/ws realm1 com.example.login --kw user='"alice"' --ack
  wamplink publish ws://localhost:8080/ws realm1 com.example.heartbeat --cron "@every 10s"`,
	Args: cobra.MinimumNArgs(3),
	RunE: runPublish,
}

var (
	publishTimeout  time.Duration
	publishKwargs   []string
	publishAck      bool
	publishCron     string
	publishTimezone string
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().DurationVar(&publishTimeout, "timeout", 30*time.Second, "Total operation timeout (per publication with --cron)")
	publishCmd.Flags().StringArrayVar(&publishKwargs, "kw", nil, "keyword argument as key=value (repeatable)")
	publishCmd.Flags().BoolVar(&publishAck, "ack", false, "wait for the broker to acknowledge the publication")
	publishCmd.Flags().StringVar(&publishCron, "cron", "", "publish repeatedly on this schedule")
	publishCmd.Flags().StringVar(&publishTimezone, "timezone", "", "timezone for --cron schedules (default local)")
}

type publication struct {
	client *client.Client
	logger *zap.Logger
	topic  wamp.URI
	args   wamp.List
	kwargs wamp.Dict
}

func (p *publication) publish(ctx context.Context) error {
	if !publishAck {
		return p.client.Publish(ctx, p.topic, nil, p.args, p.kwargs)
	}

	id, err := p.client.PublishAcknowledged(ctx, p.topic, nil, p.args, p.kwargs)
	if err != nil {
		return err
	}
	p.logger.Info("Publication acknowledged",
		zap.String("topic", string(p.topic)),
		zap.Uint64("publication", uint64(id)),
	)
	return nil
}

// Run implements cron.Job.
func (p *publication) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.publish(ctx); err != nil {
		p.logger.Error("Scheduled publish failed", zap.String("topic", string(p.topic)), zap.Error(err))
		return
	}
	p.logger.Debug("Scheduled publish sent", zap.String("topic", string(p.topic)))
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	kwargs, err := parseKwargs(publishKwargs)
	if err != nil {
		return err
	}

	if publishCron != "" {
		if _, err := config.ParseSchedule(publishCron); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", publishCron, err)
		}
		return runScheduledPublish(logger, args, kwargs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	conn, err := connect(ctx, logger, args[0], args[1], clientOptions{})
	if err != nil {
		return err
	}
	defer conn.close(logger)

	p := &publication{
		client: conn.client,
		logger: logger,
		topic:  wamp.URI(args[2]),
		args:   parseArgs(args[3:]),
		kwargs: kwargs,
	}
	if err := p.publish(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	logger.Info("Event published successfully", zap.String("topic", string(p.topic)))
	return nil
}

func runScheduledPublish(logger *zap.Logger, args []string, kwargs wamp.Dict) error {
	scheduler, err := config.NewScheduler(logger, publishTimezone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	conn, err := connect(ctx, logger, args[0], args[1], clientOptions{reconnect: true})
	cancel()
	if err != nil {
		return err
	}
	defer conn.close(logger)

	p := &publication{
		client: conn.client,
		logger: logger,
		topic:  wamp.URI(args[2]),
		args:   parseArgs(args[3:]),
		kwargs: kwargs,
	}
	if _, err := scheduler.AddJob(publishCron, p); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", publishCron, err)
	}

	scheduler.Start()
	logger.Info("Publishing on schedule... (Press Ctrl+C to exit)",
		zap.String("topic", string(p.topic)),
		zap.String("schedule", publishCron),
	)

	waitForSignal(context.Background(), logger)

	<-scheduler.Stop().Done()
	return nil
}
