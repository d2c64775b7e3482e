package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/client"
	"github.com/tsarna/wamplink/pkg/wamp/transform"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve <url> <realm> <procedure>",
	Short: "Register a procedure and answer calls to it",
	Long: `Register a procedure on a WAMP router and answer every call until
interrupted.

By default the procedure echoes its arguments back. With --jq the result is
computed from the invocation instead: the query sees an object with "args"
and "kwargs" and the procedure URI as $uri. A query with no result answers
with an empty result.

Examples:
  wamplink serve ws://localhost:8080/ws realm1 com.example.echo
  wamplink serve ws://localhost:8080/ws realm1 com.example.add --jq '.args | add'`,
	Args: cobra.ExactArgs(3),
	RunE: runServe,
}

var serveJq string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveJq, "jq", "", "jq query computing the result from the invocation")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	var resultTransform transform.PayloadTransformFunc
	if serveJq != "" {
		if resultTransform, err = transform.JqTransform(serveJq, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := connect(ctx, logger, args[0], args[1], clientOptions{reconnect: true})
	if err != nil {
		return err
	}
	defer conn.close(logger)

	procedure := wamp.URI(args[2])
	reg, err := conn.client.Register(ctx, procedure, newHandler(logger, procedure, resultTransform), nil)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", procedure, err)
	}

	logger.Info("Serving procedure... (Press Ctrl+C to exit)",
		zap.String("procedure", string(procedure)),
		zap.Uint64("registration", uint64(reg.ID)),
	)

	waitForSignal(ctx, logger)
	return nil
}

// newHandler echoes the invocation's arguments, or returns the result of
// resultTransform when it is set.
func newHandler(logger *zap.Logger, procedure wamp.URI, resultTransform transform.PayloadTransformFunc) client.Handler {
	return func(ctx context.Context, invocation *wamp.Invocation) (wamp.Payload, error) {
		payload := wamp.Payload{Arguments: invocation.Arguments, ArgumentsKw: invocation.ArgumentsKw}

		logger.Debug("Invocation received",
			zap.Uint64("request", uint64(invocation.Request)),
			zap.String("procedure", string(procedure)),
		)

		if resultTransform == nil {
			return payload, nil
		}

		result, ok, err := resultTransform(ctx, procedure, payload)
		if err != nil {
			return wamp.Payload{}, err
		}
		if !ok {
			return wamp.Payload{}, nil
		}
		return result, nil
	}
}
