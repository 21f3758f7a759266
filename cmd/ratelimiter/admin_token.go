package main

import (
	"context"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/jwt"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newAdminTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Issue a bearer token for the admin endpoints (jwt.enabled must be true)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withInjector(cmd, func(ctx context.Context, i *do.RootScope) error {
				tm, err := do.Invoke[*jwt.TokenManager](i)
				if err != nil {
					return fmt.Errorf("admin tokens unavailable: %w", err)
				}
				token, err := tm.Generate(ctx, subject, roles, ttl)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&subject, "subject", "ops", "token subject")
	f.StringSliceVar(&roles, "role", []string{"admin"}, "roles carried by the token")
	f.DurationVar(&ttl, "ttl", 0, "token lifetime, 0 uses jwt.ttl")
	return cmd
}
