package main

import (
	"fmt"
	"time"

	"github.com/graminate/finance-bfa-go/internal/config"
	"github.com/graminate/finance-bfa-go/internal/service"

	"github.com/spf13/cobra"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		secret string
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--for is required")
			}
			token, err := service.NewTokenVerifier(secret).Sign(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", cfg.JWTSecret, "HS256 signing secret")
	cmd.Flags().StringVar(&userID, "for", "", "user id the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
