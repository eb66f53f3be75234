package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwtpkg "biliticket/invitehub/pkg/jwt"
)

func newTokenCmd(c *cli) *cobra.Command {
	var (
		subject   string
		tokenType string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an admin or a calling service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.JWT.SigningKey == "" {
				return errors.New("jwt.signing_key is required")
			}
			var tt jwtpkg.TokenType
			switch tokenType {
			case "access":
				tt = jwtpkg.TokenTypeAccess
			case "service":
				tt = jwtpkg.TokenTypeService
			default:
				return fmt.Errorf("unknown token type %q (access|service)", tokenType)
			}
			manager := jwtpkg.NewManager(c.cfg.JWT.SigningKey, c.cfg.JWT.Issuer, c.cfg.JWT.TokenTTL)
			token, err := manager.GenerateToken(subject, tt, ttl)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject; admin tokens need an id listed in admin.user_ids")
	cmd.Flags().StringVar(&tokenType, "type", "access", "token type: access or service")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime (0 uses jwt.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
