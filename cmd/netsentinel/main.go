// Command netsentinel is the host-resident network observability and
// response agent's CLI entrypoint, grounded on the smart-mcp-proxy
// pack repo's cmd/mcpproxy/main.go cobra root command: persistent
// global flags shared by every subcommand, one cobra.Command per
// subcommand file, exit codes distinguishing I/O/parse failures from
// success.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configFile string
	logLevel   string
	logJSON    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "netsentinel",
		Short:   "Host-resident network observability and response agent",
		Version: "0.1.0",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogger()
		},
	}

	var flags *pflag.FlagSet = rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "./config/config.toml", "Configuration file path")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&logJSON, "log-json", false, "Emit logs as JSON instead of text")

	rootCmd.AddCommand(newTUICommand())
	rootCmd.AddCommand(newFlowsCommand())
	rootCmd.AddCommand(newRuleTestCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(classifyError(err))
	}
}

// setupLogger installs the process-wide slog default handler, per
// SPEC_FULL.md §10: JSON in production, text in development, matching
// the teacher's attribute-pair slog call style.
func setupLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
