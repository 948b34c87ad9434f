package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pso-precache/internal/psostore"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long:  `Open the configured store and print its record counts broken down by pipeline kind.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := psostore.NewGormDB(&cfg.Cache)
	if err != nil {
		return err
	}
	store := psostore.NewGormStore(db, GetLogger(), utils.NewRealClock())
	info, err := store.Open(ctx, cfg.Cache.Name)
	if err != nil {
		return err
	}
	defer store.Close()

	headers, err := store.OrderedHeaders(ctx, model.OrderDefault, 0, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Cache:   %s\n", info.Name)
	fmt.Printf("Guid:    %s\n", info.Guid)
	fmt.Printf("Records: %d\n", info.RecordCount)
	fmt.Printf("Visible: %d (under the current usage mask and bind filters)\n", len(headers))

	shaders := make(map[model.ShaderHash]struct{})
	for _, h := range headers {
		for _, sh := range h.ShaderHashes {
			shaders[sh] = struct{}{}
		}
	}
	fmt.Printf("Distinct shaders referenced: %d\n", len(shaders))
	return nil
}
