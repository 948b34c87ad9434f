package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pso-precache/internal/precompile"
	"github.com/pso-precache/internal/psostore"
	"github.com/pso-precache/internal/rhi"
	"github.com/pso-precache/internal/shaderlib"
	"github.com/pso-precache/internal/storage"
	"github.com/pso-precache/pkg/config"
	"github.com/pso-precache/pkg/telemetry"
	"github.com/pso-precache/pkg/utils"
)

var (
	// Global flags
	verbose bool
	cfgFile string

	logger utils.Logger
	cfg    *config.Config

	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pso-precache",
	Short: "A PSO precompilation cache tool",
	Long: `pso-precache manages a pipeline state object (PSO) precompilation cache.

It replays PSO descriptors recorded on prior runs through a batched compile
conveyor so that pipelines are warm before the game needs them. Records live
in a sqlite, mysql or postgres store; shader bytecode is resolved from a
local or COS-backed blob library.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		telemetryShutdown, err = telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("Telemetry init failed, continuing without tracing: %v", err)
			telemetryShutdown = nil
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			return telemetryShutdown(cmd.Context())
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file path (default searches ./config.yaml, ./configs, /etc/pso-precache)")

	binName := BinName()
	rootCmd.Example = `  # Run a blocking precompile pass against the configured store
  ` + binName + ` precompile --components base,hd_textures

  # Warm the cache in the background until interrupted
  ` + binName + ` warm --mode background

  # Import recorded PSO descriptors into the store
  ` + binName + ` import -i ./recorded-psos.json

  # Show store statistics
  ` + binName + ` stats`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// buildCache wires the store, shader library and backend into a cache
// service from the loaded configuration.
func buildCache(ctx context.Context, components []string) (*precompile.Cache, *shaderlib.BlobLibrary, error) {
	db, err := psostore.NewGormDB(&cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	clock := utils.NewRealClock()
	store := psostore.NewGormStore(db, logger, clock)

	blobs, err := storage.NewStorage(&cfg.Shaders)
	if err != nil {
		return nil, nil, err
	}
	library := shaderlib.NewBlobLibrary(blobs, logger)

	cache, err := precompile.New(precompile.OptionsFromConfig(cfg), store, library, rhi.NewNullBackend(), clock, logger)
	if err != nil {
		return nil, nil, err
	}

	for _, name := range components {
		if err := library.OpenComponent(ctx, name); err != nil {
			logger.Warn("Failed to open shader component %s: %v", name, err)
		}
	}
	return cache, library, nil
}
