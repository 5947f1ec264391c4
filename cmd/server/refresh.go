package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/refresh"
	"github.com/eplot/eprec/pkg/server"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print its outcome",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := refreshOnce(ctx, cfg)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if out.Status == refresh.StatusFailed {
			return fmt.Errorf("refresh failed: %s", out.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

// refreshOnce runs a single cycle. No server shares the coordinator here, so
// the replace ticket is only contended with itself.
func refreshOnce(ctx context.Context, cfg server.Config) refresh.Outcome {
	scheduler, _, _ := server.InitializeRefresh(cfg, access.New(), nil)
	return scheduler.RunCycle(ctx)
}
