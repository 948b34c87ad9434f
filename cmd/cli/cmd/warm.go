package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pso-precache/pkg/model"
)

var (
	// Warm command flags
	warmComponents string
	warmMode       string
)

// warmCmd represents the warm command
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Warm the cache in the background until interrupted",
	Long: `Run the precompile conveyor as a long-lived background process.

The conveyor ticks at the configured interval in the requested batch mode,
trickling compiles so a host process stays responsive. Bound-PSO bookkeeping
is auto-saved per the configured threshold and interval. Ctrl+C saves and
shuts down cleanly.`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	binName := BinName()
	warmCmd.Example = `  # Trickle compiles one per tick
  ` + binName + ` warm --components base

  # Burn through the backlog with large frame-budgeted batches
  ` + binName + ` warm --components base --mode fast`

	warmCmd.Flags().StringVar(&warmComponents, "components", "", "Comma-separated shader components to open")
	warmCmd.Flags().StringVar(&warmMode, "mode", "background", "Batch mode: paused, fast, background or precompile")
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := GetLogger()

	cache, _, err := buildCache(ctx, splitComponents(warmComponents))
	if err != nil {
		return err
	}

	if err := cache.Open(ctx, cfg.Cache.Name); err != nil {
		return err
	}
	cache.SetBatchMode(model.ParseBatchMode(warmMode))

	if err := cache.Start(ctx); err != nil {
		return err
	}
	log.Info("Warming cache %s, %d PSOs remaining. Press Ctrl+C to stop.",
		cfg.Cache.Name, cache.NumPrecompilesRemaining())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Info("Shutting down...")
	case <-ctx.Done():
	}

	return cache.Shutdown(ctx)
}
