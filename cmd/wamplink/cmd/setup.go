package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/client"
	"github.com/tsarna/wamplink/pkg/wamp/config"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
	"github.com/tsarna/wamplink/pkg/wamp/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "wamplink"

func setupLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(resolveLogLevel(logLevel, GetDebug(), GetVerbose()))
	config.Development = GetDebug()

	return config.Build()
}

func resolveLogLevel(level string, debugFlag, verboseFlag bool) zapcore.Level {
	// Override log level based on flags
	if debugFlag {
		level = "debug"
	} else if verboseFlag && level == "info" {
		level = "debug"
	}

	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// clientSettings returns the client definition to connect with: the one
// selected from the config file when there is one, otherwise a bare
// definition. A non-empty url or realm overrides the definition's.
func clientSettings(logger *zap.Logger, url, realm string, dialTimeoutSet bool) (*config.ClientConfig, error) {
	settings := &config.ClientConfig{Name: "cli"}

	if configPath != "" {
		cfg, diags := config.NewConfig().
			WithLogger(logger).
			WithSources(configPath).
			Build()
		if diags.HasErrors() {
			logger.Error("Failed to build config", zap.Any("diags", diags))
			return nil, diags
		}

		var (
			selected *config.ClientConfig
			err      error
		)
		if clientName != "" {
			selected, err = cfg.Client(clientName)
		} else {
			selected, err = cfg.DefaultClient()
		}
		if err != nil {
			return nil, err
		}
		copied := *selected
		settings = &copied
	}

	if url != "" {
		settings.URL = url
	}
	if realm != "" {
		settings.Realm = realm
	}
	if serializer != "" {
		settings.Serializer = serializer
	}
	if dialTimeoutSet || settings.DialTimeout == 0 {
		settings.DialTimeout = dialTimeout
	}

	return settings, settings.Validate()
}

type clientOptions struct {
	reconnect bool
	metrics   o11y.MetricsProvider
}

// connection is a joined client with the settings it was built from.
type connection struct {
	client      *client.Client
	settings    *config.ClientConfig
	reconnector *client.AutoReconnector // nil unless requested
}

// connect builds a client from the command line and config settings and
// joins the realm.
func connect(ctx context.Context, logger *zap.Logger, url, realm string, opts clientOptions) (*connection, error) {
	settings, err := clientSettings(logger, url, realm, rootCmd.PersistentFlags().Changed("dial-timeout"))
	if err != nil {
		return nil, err
	}

	b, err := settings.Builder(logger)
	if err != nil {
		return nil, err
	}
	if enableOtel {
		b.WithObservability(otel.NewProvider(serviceName, client.Version).Config(serviceName, client.Version))
	}
	if opts.metrics != nil {
		b.WithMetrics(opts.metrics)
	}

	conn := &connection{settings: settings}
	if opts.reconnect {
		conn.reconnector = newReconnector(logger, settings)
		b.WithMonitor(conn.reconnector)
	}

	if conn.client, err = b.Build(); err != nil {
		return nil, fmt.Errorf("failed to create WAMP client: %w", err)
	}

	if err := conn.client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", settings.URL, err)
	}

	logger.Info("Joined realm",
		zap.String("url", settings.URL),
		zap.String("realm", settings.Realm),
		zap.Uint64("session", uint64(conn.client.SessionID())),
	)
	return conn, nil
}

// newReconnector uses the definition's reconnect settings, or the defaults
// when it has none.
func newReconnector(logger *zap.Logger, settings *config.ClientConfig) *client.AutoReconnector {
	if settings.Reconnect != nil {
		return settings.Reconnect.Builder(logger).Build()
	}
	return client.NewAutoReconnector().WithLogger(logger).Build()
}

// waitForSignal blocks until SIGINT, SIGTERM or the end of ctx.
func waitForSignal(ctx context.Context, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Debug("Signal received, exiting", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}
}

// close stops reconnecting and leaves the realm.
func (conn *connection) close(logger *zap.Logger) {
	if conn.reconnector != nil {
		conn.reconnector.SetEnabled(false)
	}

	if err := conn.client.Disconnect(context.Background()); err != nil {
		logger.Warn("Error during client disconnect", zap.Error(err))
	}

	if conn.reconnector != nil {
		conn.reconnector.Wait()
	}
	logger.Info("Shutdown complete")
}

// lazyPublisher lets a metrics provider be created before the client that
// publishes its snapshots.
type lazyPublisher struct {
	client *client.Client
}

func (p *lazyPublisher) Publish(ctx context.Context, topic wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) error {
	if p.client == nil {
		return wamp.ErrNotEstablished
	}
	return p.client.Publish(ctx, topic, options, args, kwargs)
}
