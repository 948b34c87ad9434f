package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/pso-precache/internal/precompile"
	"github.com/pso-precache/pkg/model"
)

var (
	// Precompile command flags
	precompileComponents string
	precompileMask       uint64
)

// precompileCmd represents the precompile command
var precompileCmd = &cobra.Command{
	Use:   "precompile",
	Short: "Run a blocking precompile pass over the recorded PSOs",
	Long: `Run one blocking precompilation pass: open the configured store, enqueue
every recorded PSO passing the usage mask and bind-count filters, and compile
until the backlog empties or the configured wall-clock ceiling is hit.

Shader components named with --components are opened from the blob library
before the pass starts; PSOs whose shaders are in no open component are held
back, and the pass stops once only such PSOs remain.`,
	RunE: runPrecompile,
}

func init() {
	rootCmd.AddCommand(precompileCmd)

	binName := BinName()
	precompileCmd.Example = `  # Precompile everything recorded for the base game
  ` + binName + ` precompile --components base

  # Limit the pass to records matching a usage mask
  ` + binName + ` precompile --components base,dlc1 --mask 0x6`

	precompileCmd.Flags().StringVar(&precompileComponents, "components", "", "Comma-separated shader components to open before the pass")
	precompileCmd.Flags().Uint64Var(&precompileMask, "mask", 0, "Game usage mask to filter records by (0 uses the configured default)")
}

func runPrecompile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := GetLogger()

	cache, _, err := buildCache(ctx, splitComponents(precompileComponents))
	if err != nil {
		return err
	}
	defer cache.Shutdown(ctx)

	cache.Events().OnPrecompilationBegin(func(tasks int64) {
		log.Info("Precompiling %d pipeline state objects...", tasks)
	})
	cache.Events().OnPrecompilationComplete(func(stats precompile.PrecompileStats) {
		log.Info("Pass finished: %d compiled, %d dropped in %v", stats.Complete, stats.Dropped, stats.Elapsed)
	})

	if err := cache.Open(ctx, cfg.Cache.Name); err != nil {
		return err
	}

	if precompileMask != 0 {
		if _, err := cache.SetUsageMask(ctx, model.UsageMask(precompileMask), nil); err != nil {
			return err
		}
	}

	if err := cache.RunPrecompile(ctx); err != nil {
		return err
	}

	stats := cache.Stats()
	log.Info("Counters: %d admitted, %d complete, %d dropped, compile time %v",
		stats.Counters.Admitted, stats.Counters.Complete, stats.Counters.Dropped, stats.Counters.CompileTime)
	return nil
}

func splitComponents(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
