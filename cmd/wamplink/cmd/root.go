package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	verbose     bool
	debug       bool
	logLevel    string
	serializer  string
	configPath  string
	clientName  string
	dialTimeout time.Duration
	enableOtel  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wamplink",
	Short: "WAMP client tool",
	Long: `wamplink joins a realm on a WAMP router and calls procedures, publishes
and subscribes to topics, or serves a procedure from the command line.

Connection settings beyond the URL and realm (authentication, serializer,
reconnection, HELLO details) can be loaded from an HCL or TOML config file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serializer, "serializer", "", "serializer (json, msgpack)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "HCL or TOML config file or directory")
	rootCmd.PersistentFlags().StringVar(&clientName, "client", "", "client definition to use from the config")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	rootCmd.PersistentFlags().BoolVar(&enableOtel, "otel", false, "record metrics and traces with the global OpenTelemetry providers")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}
