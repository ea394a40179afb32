package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// storeCmd groups store utilities.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Subscriber store utilities",
}

// storePingCmd checks the configured store is reachable.
var storePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the subscriber store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: PONG\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storePingCmd)
	rootCmd.AddCommand(storeCmd)
}
