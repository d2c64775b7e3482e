package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/transform"
	"go.uber.org/zap"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call <url> <realm> <procedure> [args...]",
	Short: "Call a remote procedure and print its result",
	Long: `Call a procedure on a WAMP router and print the result as JSON.

Arguments after the procedure are positional arguments. Each is parsed as
JSON, and used as a plain string if it is not valid JSON. Keyword arguments
are given with --kw key=value.

Examples:
  wamplink call ws://localhost:8080/ws realm1 com.example.add 2 3
  wamplink call ws://localhost:8080/ws realm1 com.example.greet --kw name='"alice"'
  wamplink call ws://localhost:8080/ws realm1 com.example.stats --jq '.kwargs.uptime'`,
	Args: cobra.MinimumNArgs(3),
	RunE: runCall,
}

var (
	callTimeout time.Duration
	callKwargs  []string
	callJq      string
)

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "Total operation timeout")
	callCmd.Flags().StringArrayVar(&callKwargs, "kw", nil, "keyword argument as key=value (repeatable)")
	callCmd.Flags().StringVar(&callJq, "jq", "", "jq query applied to the result")
}

func runCall(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	procedure := wamp.URI(args[2])
	callArgs := parseArgs(args[3:])
	kwargs, err := parseKwargs(callKwargs)
	if err != nil {
		return err
	}

	var resultTransform transform.PayloadTransformFunc
	if callJq != "" {
		if resultTransform, err = transform.JqTransform(callJq, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	conn, err := connect(ctx, logger, args[0], args[1], clientOptions{})
	if err != nil {
		return err
	}
	defer conn.close(logger)

	logger.Debug("Calling procedure",
		zap.String("procedure", string(procedure)),
		zap.Any("args", callArgs),
		zap.Any("kwargs", kwargs),
	)

	result, err := conn.client.Call(ctx, procedure, nil, callArgs, kwargs)
	if err != nil {
		return fmt.Errorf("call %s failed: %w", procedure, err)
	}

	payload := wamp.Payload{Arguments: result.Arguments, ArgumentsKw: result.ArgumentsKw}
	if resultTransform != nil {
		var ok bool
		payload, ok, err = resultTransform(ctx, procedure, payload)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	out, err := formatPayload(payload.Arguments, payload.ArgumentsKw)
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
