package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/storage"

	"github.com/spf13/cobra"
)

var (
	subStatus string
	subSearch string
	subPage   int
	subLimit  int
	subSource string
	subOutput string
)

// subscribersCmd groups subscriber management subcommands.
var subscribersCmd = &cobra.Command{
	Use:     "subscribers",
	Aliases: []string{"subs"},
	Short:   "Manage newsletter subscribers",
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(ctx context.Context, st storage.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	st, err := openStore(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func listFilter() (model.ListFilter, error) {
	status, err := model.ParseStatusFilter(subStatus)
	if err != nil {
		return model.ListFilter{}, err
	}
	return model.ListFilter{Status: status, Search: subSearch}, nil
}

var subListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := listFilter()
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st storage.Store) error {
			page, err := st.List(ctx, f, subPage, subLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tSTATUS\tSUBSCRIBED\tSOURCE")
			for _, s := range page.Records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Email, s.Status, s.SubscribedAt.Format(time.RFC3339), s.Source)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			p := page.Pagination
			fmt.Fprintf(cmd.OutOrStdout(), "\npage %d/%d, %d matching; total %d (subscribed %d, unsubscribed %d)\n",
				p.CurrentPage, p.TotalPages, p.TotalItems, page.Stats.Total, page.Stats.Subscribed, page.Stats.Unsubscribed)
			return nil
		})
	},
}

var subAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Subscribe an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			sub, outcome, err := st.Subscribe(ctx, args[0], subSource)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", outcome, sub.Email, sub.ID)
			return nil
		})
	},
}

var subUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <email>",
	Short: "Unsubscribe an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			sub, outcome, err := st.Unsubscribe(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", outcome, sub.Email)
			return nil
		})
	},
}

var subDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Permanently delete a subscriber record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var subExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export subscribers as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := listFilter()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if subOutput != "" && subOutput != "-" {
			fh, err := os.Create(subOutput)
			if err != nil {
				return err
			}
			defer fh.Close()
			w = fh
		}
		return withStore(func(ctx context.Context, st storage.Store) error {
			n, err := storage.Export(ctx, st, f, w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d subscribers\n", n)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{subListCmd, subExportCmd} {
		c.Flags().StringVar(&subStatus, "status", "", "filter by status: subscribed, unsubscribed or all")
		c.Flags().StringVar(&subSearch, "search", "", "case-insensitive email substring")
	}
	subListCmd.Flags().IntVar(&subPage, "page", 1, "page number")
	subListCmd.Flags().IntVar(&subLimit, "limit", model.DefaultPageSize, "page size")
	subAddCmd.Flags().StringVar(&subSource, "source", "cli", "where the signup came from")
	subExportCmd.Flags().StringVarP(&subOutput, "output", "o", "", "write CSV to this file instead of stdout")

	subscribersCmd.AddCommand(subListCmd, subAddCmd, subUnsubscribeCmd, subDeleteCmd, subExportCmd)
	rootCmd.AddCommand(subscribersCmd)
}
