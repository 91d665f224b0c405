package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for the webhook API",
		Long: `Issue a JWT carrying the admin role, signed with ADMIN_JWT_SECRET.
The token authorizes the /api/webhooks routes.`,
		Example: `  leadrelay token --subject ops --ttl 1h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v, err := auth.NewValidator(auth.Config{Secret: cfg.Admin.JWTSecret, Issuer: cfg.Admin.JWTIssuer},
				slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			tok, err := v.Issue(tokenSubject, tokenTTL, auth.RoleAdmin)
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}
			out := map[string]any{"token": tok, "expires_at": time.Now().Add(tokenTTL).UTC()}
			return render(cmd, out, func(w io.Writer) { fmt.Fprintln(w, tok) })
		},
	}
	cmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
