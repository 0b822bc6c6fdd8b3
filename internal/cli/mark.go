package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/attendance"
)

type markOptions struct {
	classID        int64
	registrationID int64
	status         string
	remarks        string
}

// NewMarkCommand creates the mark command.
func NewMarkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &markOptions{}
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Record one student's attendance for today",
		Long: `Record one registration's attendance for today in a single request.
LATE and EXCUSED require --remarks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMark(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.classID, "class", 0, "student class id")
	cmd.Flags().Int64Var(&opts.registrationID, "registration", 0, "registration id")
	cmd.Flags().StringVar(&opts.status, "status", "", "PRESENT, ABSENT, LATE or EXCUSED")
	cmd.Flags().StringVar(&opts.remarks, "remarks", "", "remarks, required for LATE and EXCUSED")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("registration")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func runMark(cmd *cobra.Command, rootOpts *RootOptions, opts *markOptions) error {
	status, err := attendance.ParseStatus(opts.status)
	if err != nil {
		return err
	}
	if _, err := attendance.NewMark(status, opts.remarks); err != nil {
		return err
	}
	client, err := rootOpts.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*rootOpts.Timeout)
	defer cancel()

	regs, err := client.FetchRegistrations(ctx, opts.classID)
	if err != nil {
		return fmt.Errorf("fetch registrations: %w", err)
	}
	session := attendance.NewSession(attendance.Options{
		ClassID:       opts.classID,
		Remote:        client,
		Registrations: regs,
		Location:      rootOpts.location(),
		Logger:        rootOpts.logger(cmd),
	})
	res, err := session.CommitOne(ctx, opts.registrationID, status, opts.remarks)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return json.NewEncoder(w).Encode(res.Records[0])
	}
	r := res.Records[0]
	if r.Remarks != "" {
		_, err = fmt.Fprintf(w, "registration %d: %s (%s) on %s\n", r.RegistrationID, r.Status, r.Remarks, r.Date)
	} else {
		_, err = fmt.Fprintf(w, "registration %d: %s on %s\n", r.RegistrationID, r.Status, r.Date)
	}
	return err
}
