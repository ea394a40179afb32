package cmd

import (
	"fmt"
	"time"

	"storefront-newsletter/internal/imaging"

	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Normalized header image assets",
}

var assetsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove converted images older than images.max_age",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		maxAge, err := duration("images.max_age", cfg.Images.MaxAge)
		if err != nil {
			return err
		}
		n, err := imaging.Prune(cfg.Images.AssetsDir, maxAge, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d assets from %s\n", n, cfg.Images.AssetsDir)
		return nil
	},
}

func init() {
	assetsCmd.AddCommand(assetsPruneCmd)
	rootCmd.AddCommand(assetsCmd)
}
