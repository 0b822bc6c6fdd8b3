package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rollcall/internal/apiclient"
	"rollcall/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	API      string
	Token    string
	Timeout  time.Duration
	Timezone string
	Format   string // "json" | "text"
	Verbose  bool

	// PageSize is ROSTER_PAGE_SIZE, shared with the API.
	PageSize int
	config   *config.App
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the rollcallctl root command.
func NewRootCommand() *cobra.Command {
	cfg := config.Read()
	opts := &RootOptions{PageSize: cfg.RosterPageSize, config: cfg}

	cmd := &cobra.Command{
		Use:   "rollcallctl",
		Short: "Operator tools for class attendance",
		Long: `rollcallctl talks to the attendance service directly: list a class
roster with today's attendance, record a single student's attendance, list
journaled commits, or issue development tokens for the rollcall API.

Defaults come from the same environment (and .env) as the servers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := time.LoadLocation(opts.Timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", opts.Timezone, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.API, "api", cfg.AttendanceAPIURL, "attendance service base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("ROLLCALL_TOKEN"), "bearer token for the attendance service")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", cfg.APITimeout, "request timeout")
	cmd.PersistentFlags().StringVar(&opts.Timezone, "tz", cfg.Timezone, "timezone that defines today")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log requests to stderr")

	cmd.AddCommand(NewRosterCommand(opts))
	cmd.AddCommand(NewMarkCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) client() (*apiclient.Client, error) {
	if o.Token == "" {
		return nil, errors.New("no token: pass --token or set ROLLCALL_TOKEN")
	}
	return apiclient.New(o.API, o.Timeout).WithToken(apiclient.StaticToken(o.Token)), nil
}

func (o *RootOptions) location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (o *RootOptions) logger(cmd *cobra.Command) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(logrus.WarnLevel)
	if o.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
