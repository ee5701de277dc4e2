package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "folio",
	Short:         "Edit portfolio content and save only what changed",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(pullCmd, listCmd, showCmd, setCmd, diffCmd, saveCmd, createCmd, discardCmd)
	rootCmd.AddCommand(tagCmd, pairCmd, langCmd, imageCmd, tweetCmd)
	rootCmd.AddCommand(configCmd, serveCmd, stopCmd, statusCmd, mcpCmd, gcCmd)
}

func main() {
	// Interrupting a save cancels its requests so the saving mark is cleared.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%s", describeError(err))
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler on stderr.
func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func usageError(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf("%s\nusage: %s", fmt.Sprintf(format, args...), cmd.UseLine())
}
