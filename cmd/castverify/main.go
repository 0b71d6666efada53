package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/castverify/pkg/common/logger"
	"github.com/ahrav/castverify/pkg/common/otel"
)

var build = "develop"

const serviceType = "castverify"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "castverify",
		Short:         "Verify that an actor liked, recast or replied to a cast",
		Version:       build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "overrides log.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newResolveCmd(opts),
		newUserCmd(opts),
	)
	return root
}

// newLogger builds the process logger. Error records are mirrored to stderr
// as a single JSON event line.
func newLogger(level logger.Level) *logger.Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	metadata := map[string]string{
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
		"build":     build,
	}

	return logger.NewWithMetadata(os.Stdout, level, serviceType, traceIDFn, logEvents, metadata)
}
