package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"noindex-seo/internal/admin"
)

func newTokenCmd(g *globalOptions) *cobra.Command {
	var (
		subject string
		caps    []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return fmt.Errorf("security.jwt_secret must be set to issue tokens")
			}
			for _, c := range caps {
				if c != admin.CapManageOptions && c != admin.CapEditPosts {
					return fmt.Errorf("unknown capability %q", c)
				}
			}
			if ttl <= 0 {
				ttl = cfg.Security.TokenTTL
			}
			auth, err := admin.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.Issuer, ttl, cfg.Security.NonceTTL)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(subject, caps)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&subject, "subject", "", "user the token is issued to")
	flags.StringSliceVar(&caps, "cap", []string{admin.CapManageOptions, admin.CapEditPosts}, "capabilities to grant")
	flags.DurationVar(&ttl, "ttl", 0, "token lifetime (default security.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
