package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/auth"
)

type tokenOptions struct {
	operator string
	role     string
	key      string
	issuer   string
	ttl      time.Duration
}

// NewTokenCommand creates the token command, which issues a development JWT
// for the rollcall API.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token for the rollcall API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.key == "" {
				return errors.New("no signing key: pass --key or set JWT_SIGNING_KEY")
			}
			tok, err := auth.Issue(opts.operator, opts.role, opts.issuer, opts.key, opts.ttl)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(map[string]any{
					"token":      tok.Value,
					"expires_at": tok.ExpiresAt.UTC().Format(time.RFC3339),
				})
			}
			_, err = fmt.Fprintln(w, tok.Value)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.operator, "operator", "", "operator id (token subject)")
	cmd.Flags().StringVar(&opts.role, "role", "teacher", "operator role")
	cmd.Flags().StringVar(&opts.key, "key", rootOpts.config.JWTSigningKey, "HS256 signing key")
	cmd.Flags().StringVar(&opts.issuer, "issuer", rootOpts.config.JWTIssuer, "token issuer")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", rootOpts.config.AccessTTL, "token lifetime (ACCESS_TTL)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
