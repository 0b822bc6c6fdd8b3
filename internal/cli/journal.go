package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/journal"
	"rollcall/internal/store"
)

type journalOptions struct {
	classID     int64
	limit       int
	databaseURL string
}

// NewJournalCommand creates the journal command, which lists the commits the
// worker has recorded for a class.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &journalOptions{}
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled attendance commits for a class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.classID, "class", 0, "student class id")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "most recent batches to show")
	cmd.Flags().StringVar(&opts.databaseURL, "database", rootOpts.config.DatabaseURL, "journal database URL (DATABASE_URL)")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func runJournal(cmd *cobra.Command, rootOpts *RootOptions, opts *journalOptions) error {
	if opts.limit < 1 {
		return fmt.Errorf("invalid limit %d: must be positive", opts.limit)
	}
	db, err := store.NewDB(opts.databaseURL)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
	defer cancel()
	batches, err := journal.NewRepository(db.Client).ListBatches(ctx, opts.classID, opts.limit)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	return printBatches(cmd, rootOpts.Format, batches)
}

func printBatches(cmd *cobra.Command, format string, batches []journal.Batch) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		if batches == nil {
			batches = []journal.Batch{}
		}
		return json.NewEncoder(w).Encode(batches)
	}
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, "no commits journaled")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tDATE\tOPERATOR\tENTRIES")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.BatchID, b.Date, b.Operator, b.Entries)
	}
	return tw.Flush()
}
