package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/attendance"
	"rollcall/internal/roster"
)

type rosterOptions struct {
	classID int64
	query   string
	sort    string
	order   string
	page    int
}

// RosterRow is one printed roster line.
type RosterRow struct {
	RegistrationID int64             `json:"registration_id"`
	Name           string            `json:"name"`
	Enrollment     string            `json:"enrollment"`
	Status         attendance.Status `json:"status,omitempty"`
	Remarks        string            `json:"remarks,omitempty"`
	FetchError     string            `json:"fetch_error,omitempty"`
}

// RosterOutput is the roster command's result.
type RosterOutput struct {
	ClassID    int64       `json:"class_id"`
	Date       string      `json:"date"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	TotalItems int         `json:"total_items"`
	Rows       []RosterRow `json:"rows"`
}

// NewRosterCommand creates the roster command.
func NewRosterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &rosterOptions{}
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List a class roster with today's attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoster(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.classID, "class", 0, "student class id")
	cmd.Flags().StringVar(&opts.query, "query", "", "filter by name or enrollment status")
	cmd.Flags().StringVar(&opts.sort, "sort", "name", "sort field (name|status|id)")
	cmd.Flags().StringVar(&opts.order, "order", "asc", "sort order (asc|desc)")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func runRoster(cmd *cobra.Command, rootOpts *RootOptions, opts *rosterOptions) error {
	field, err := roster.ParseSortField(opts.sort)
	if err != nil {
		return err
	}
	order, err := roster.ParseSortOrder(opts.order)
	if err != nil {
		return err
	}
	client, err := rootOpts.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 4*rootOpts.Timeout)
	defer cancel()

	regs, err := client.FetchRegistrations(ctx, opts.classID)
	if err != nil {
		return fmt.Errorf("fetch registrations: %w", err)
	}
	view := roster.NewView(regs, rootOpts.PageSize)
	view.SetFilter(opts.query)
	if err := view.SetSort(field, order); err != nil {
		return err
	}
	page := view.Page(opts.page)

	// only the printed page needs attendance
	session := attendance.NewSession(attendance.Options{
		ClassID:       opts.classID,
		Remote:        client,
		Registrations: page.Items,
		Location:      rootOpts.location(),
		Logger:        rootOpts.logger(cmd),
	})
	if err := session.Reload(ctx).Wait(ctx); err != nil {
		return err
	}

	out := RosterOutput{
		ClassID:    opts.classID,
		Date:       session.Date().String(),
		Page:       page.Number,
		TotalPages: page.TotalPages,
		TotalItems: page.TotalItems,
		Rows:       make([]RosterRow, 0, len(page.Items)),
	}
	for _, reg := range page.Items {
		row := RosterRow{RegistrationID: reg.ID, Name: reg.StudentName(), Enrollment: reg.Status}
		if e, ok := session.Effective(reg.ID); ok {
			row.Status, row.Remarks = e.Status, e.Remarks
		}
		if err := session.FetchError(reg.ID); err != nil {
			row.FetchError = err.Error()
		}
		out.Rows = append(out.Rows, row)
	}
	return printRoster(cmd, rootOpts.Format, out)
}

func printRoster(cmd *cobra.Command, format string, out RosterOutput) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(w, "class %d  %s  page %d/%d  (%d students)\n", out.ClassID, out.Date, out.Page, out.TotalPages, out.TotalItems)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENROLLMENT\tATTENDANCE\tREMARKS")
	for _, r := range out.Rows {
		status := string(r.Status)
		switch {
		case r.FetchError != "":
			status = "error"
		case status == "":
			status = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.RegistrationID, r.Name, r.Enrollment, status, r.Remarks)
	}
	return tw.Flush()
}
