// Command dbinspect prints the contents of a Shelflife data directory.
// Run it only while the API is stopped.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelflifeapp/shelflife/internal/config"
	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/reminder"
	"github.com/shelflifeapp/shelflife/internal/search"
	"github.com/shelflifeapp/shelflife/internal/store/sqlite"
)

type rootOptions struct {
	DataPath string
	Format   string
}

var validFormats = []string{"text", "json"}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dbinspect",
		Short:         "Inspect a Shelflife data directory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if opts.DataPath == "" {
				cfg, err := config.Load(nil)
				if err != nil {
					return err
				}
				opts.DataPath = cfg.Store.DataPath
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataPath, "data-path", "", "data directory (default: configured DATA_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newProductsCommand(opts))
	cmd.AddCommand(newRemindersCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))

	return cmd
}

func newProductsCommand(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.StoreConfig{DataPath: opts.DataPath}
			st, err := sqlite.Open(cfg.DatabasePath(), slog.New(slog.DiscardHandler))
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			products, err := st.AllProducts(cmd.Context())
			if err != nil {
				return err
			}
			if userID != "" {
				products = slices.DeleteFunc(products, func(p *domain.Product) bool { return p.UserID != userID })
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), products)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tNAME\tBRAND\tSTATE\tREMAINING\tEXPIRES\tREMOTE")
			for _, p := range products {
				remote := "-"
				if p.IsBound() {
					remote = *p.RemoteID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f\t%s\t%s\n",
					p.ID, p.UserID, p.Name, p.Brand, p.State(), p.RemainingAmount, formatDate(p.ExpiryDate), remote)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d products\n", len(products))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "only products of this user")
	return cmd
}

func newRemindersCommand(opts *rootOptions) *cobra.Command {
	var dueOnly bool

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List scheduled expiry reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.StoreConfig{DataPath: opts.DataPath}
			ledger, err := reminder.Open(cfg.RemindersPath(), reminder.DefaultLeadTime, nil)
			if err != nil {
				return fmt.Errorf("open reminder ledger: %w", err)
			}
			defer ledger.Close()

			var reminders []*reminder.Reminder
			if dueOnly {
				reminders, err = ledger.Due(cmd.Context(), time.Now())
			} else {
				reminders, err = ledger.All(cmd.Context())
			}
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), reminders)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tUSER\tEXPIRES\tREMIND AT")
			for _, r := range reminders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.ProductID, r.UserID, r.ExpiresAt.Format(time.DateOnly), r.RemindAt.Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d reminders\n", len(reminders))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dueOnly, "due", false, "only reminders due now")
	return cmd
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the product search index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			index, err := search.NewSearchIndex(search.Options{DataPath: opts.DataPath})
			if err != nil {
				return fmt.Errorf("open search index: %w", err)
			}
			defer index.Close()

			hits, err := index.SearchProducts(cmd.Context(), userID, args[0], limit)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), hits)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tID\tNAME\tBRAND\tSHADE\tSTATE")
			for _, h := range hits {
				fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\t%s\n", h.Score, h.ID, h.Name, h.Brand, h.Shade, h.State)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user whose products are searched")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum hits")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}
