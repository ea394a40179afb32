package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/storage"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or replace stored newsletter branding",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print stored settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			s, err := st.GetSettings(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <settings.json>",
	Short: "Replace stored settings with the given JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var s model.Settings
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.SaveSettings(ctx, s); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		})
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
