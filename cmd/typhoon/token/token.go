// Package tokencmder provides the token command, which mints bearer tokens
// accepted by a relay started with a JWT secret.
package tokencmder

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/relay/auth"
)

const tokenLongDesc string = `Mint a bearer token for a relay that requires authentication.

The token is signed with auth.jwt_secret (or --jwt-secret) and carries the
given email as its subject. Pass it to the relay in an
"Authorization: Bearer <token>" header.

Examples:
  typhoon token --email ada@example.com
  typhoon token --email ada@example.com --ttl 1h`

const tokenShortDesc string = "Mint a relay bearer token"

type tokenCommander struct {
	email     string
	jwtSecret string
	ttl       time.Duration
}

var tokenFlags = []string{
	config.FlagEmail,
	config.FlagJWTSecret,
}

func NewTokenCmd() *cobra.Command {
	cmder := &tokenCommander{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: tokenShortDesc,
		Long:  tokenLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, tokenFlags)
			cmder.email = v.GetString("client.email")
			cmder.jwtSecret = v.GetString("auth.jwt_secret")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := cmder.mint()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagEmail, &cmder.email)
	config.AddStringFlag(cmd, config.Flags, config.FlagJWTSecret, &cmder.jwtSecret)
	cmd.Flags().DurationVar(&cmder.ttl, "ttl", 24*time.Hour, "How long the token stays valid")

	return cmd
}

func (c *tokenCommander) mint() (string, error) {
	if c.jwtSecret == "" {
		return "", errors.New("a JWT secret is required: pass --jwt-secret or set auth.jwt_secret")
	}
	if c.email == "" {
		return "", errors.New("an email is required: pass --email or set client.email")
	}
	if c.ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}
	return auth.Sign(c.jwtSecret, c.email, c.ttl)
}
