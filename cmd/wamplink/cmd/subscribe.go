package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
	"github.com/tsarna/wamplink/pkg/wamp/subutils"
	"github.com/tsarna/wamplink/pkg/wamp/transform"
	"go.uber.org/zap"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <url> <realm> <topic>...",
	Short: "Subscribe to topics and print events",
	Long: `Subscribe to one or more topics on a WAMP router and print each event to
stdout as the topic, a tab, and the payload as JSON.

The session is re-established with backoff if it is lost, using the
reconnect settings of the config file when given.

Examples:
  wamplink subscribe ws://localhost:8080/ws realm1 com.example.temperature
  wamplink subscribe ws://localhost:8080/ws realm1 com.example --match prefix
  wamplink subscribe ws://localhost:8080/ws realm1 com..temperature --match wildcard --jq '.args[0]'`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeMatch           string
	subscribeJq              string
	subscribeLogEvents       bool
	subscribeMetricsTopic    string
	subscribeMetricsInterval time.Duration
)

func init() {
	rootCmd.AddCommand(subscribeCmd)

	subscribeCmd.Flags().StringVar(&subscribeMatch, "match", "", "match policy (exact, prefix, wildcard)")
	subscribeCmd.Flags().StringVar(&subscribeJq, "jq", "", "jq query applied to each event; events with no result are skipped")
	subscribeCmd.Flags().BoolVar(&subscribeLogEvents, "log-events", false, "also log subscription activity at debug level")
	subscribeCmd.Flags().StringVar(&subscribeMetricsTopic, "metrics-topic", "", "publish client metrics to this topic")
	subscribeCmd.Flags().DurationVar(&subscribeMetricsInterval, "metrics-interval", 30*time.Second, "metrics publishing interval")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	match := wamp.MatchPolicy(subscribeMatch)
	if !match.Valid() {
		return fmt.Errorf("invalid match policy %q", subscribeMatch)
	}

	printer := &printingSubscriber{out: cmd.OutOrStdout(), logger: logger}
	if subscribeJq != "" {
		if printer.transform, err = transform.JqTransform(subscribeJq, logger); err != nil {
			return err
		}
	}

	var subscriber wamp.Subscriber = printer
	if subscribeLogEvents {
		subscriber = subutils.NewNamedLoggingSubscriber(subscriber, logger, zap.DebugLevel, "subscribe")
	}

	opts := clientOptions{reconnect: true}
	var (
		metrics   *o11y.StandaloneMetricsProvider
		publisher *lazyPublisher
	)
	if subscribeMetricsTopic != "" {
		publisher = &lazyPublisher{}
		metrics = o11y.NewStandaloneMetricsProvider(publisher, &o11y.StandaloneMetricsConfig{
			Interval:     subscribeMetricsInterval,
			MetricsTopic: wamp.URI(subscribeMetricsTopic),
			ServiceName:  serviceName,
		})
		opts.metrics = metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := connect(ctx, logger, args[0], args[1], opts)
	if err != nil {
		return err
	}
	defer conn.close(logger)

	if metrics != nil {
		publisher.client = conn.client
		metrics.Start()
		defer metrics.Stop()
	}

	topics := args[2:]
	logger.Info("Starting subscription",
		zap.Strings("topics", topics),
		zap.String("match", string(match)),
	)

	for _, topic := range topics {
		if _, err := conn.client.Subscribe(ctx, wamp.URI(topic), match, subscriber, nil); err != nil {
			logger.Error("Failed to subscribe to topic", zap.String("topic", topic), zap.Error(err))
		} else {
			logger.Info("Subscribed to topic", zap.String("topic", topic))
		}
	}

	logger.Info("Listening for events... (Press Ctrl+C to exit)")
	waitForSignal(ctx, logger)
	return nil
}

// printingSubscriber writes each event as a tab-separated topic and JSON
// payload line.
type printingSubscriber struct {
	wamp.BaseSubscriber
	out       io.Writer
	logger    *zap.Logger
	transform transform.PayloadTransformFunc

	mu sync.Mutex
}

func (s *printingSubscriber) OnEvent(ctx context.Context, topic wamp.URI, event *wamp.Event) error {
	payload := wamp.Payload{Arguments: event.Arguments, ArgumentsKw: event.ArgumentsKw}
	if s.transform != nil {
		var (
			ok  bool
			err error
		)
		payload, ok, err = s.transform(ctx, topic, payload)
		if err != nil {
			s.logger.Warn("Failed to transform event", zap.String("topic", string(topic)), zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := formatPayload(payload.Arguments, payload.ArgumentsKw)
	if err != nil {
		fmt.Fprintf(s.out, "%s\t<error marshaling JSON: %v>\n", topic, err)
		s.logger.Warn("Failed to marshal event to JSON",
			zap.String("topic", string(topic)),
			zap.Uint64("publication", uint64(event.Publication)),
			zap.Error(err))
		return nil
	}
	fmt.Fprintf(s.out, "%s\t%s\n", topic, out)
	return nil
}
