// Package cli wires the travelguide commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

// Execute runs the CLI with a signal-cancelled context.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "travelguide",
		Short: "Build visual travel guides from chat and geotagged photos",
		Long: `travelguide processes uploaded photographs, extracting embedded GPS
metadata and converting camera-native formats to browser-displayable
ones, and assembles a story of places with the help of an AI assistant.`,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newProcessCommand(opts))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("Error executing command: %v", err)
		os.Exit(1)
	}
}
