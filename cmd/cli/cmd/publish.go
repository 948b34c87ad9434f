package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pso-precache/internal/shaderlib"
	"github.com/pso-precache/internal/storage"
)

var publishComponent string

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <bytecode files...>",
	Short: "Publish shader bytecode into the blob library",
	Long: `Upload shader bytecode files into the configured blob storage and add
their hashes to a component manifest. Pipelines referencing the published
shaders become compilable once the component is opened.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVar(&publishComponent, "component", "base", "Component manifest to add the shaders to")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := GetLogger()

	blobs, err := storage.NewStorage(&cfg.Shaders)
	if err != nil {
		return err
	}
	library := shaderlib.NewBlobLibrary(blobs, log)

	for _, path := range args {
		bytecode, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		hash, err := library.PublishShader(ctx, publishComponent, bytecode)
		if err != nil {
			return err
		}
		log.Info("Published %s as %s into component %s", path, hash, publishComponent)
	}
	return nil
}
