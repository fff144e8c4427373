package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/taskflow/internal/utils"
)

var tokenTTL time.Duration

// tokenCmd mints a bearer token for an external user id so the API can be
// exercised without the hosted auth provider.  Production refuses it.
var tokenCmd = &cobra.Command{
	Use:   "token <external-id>",
	Short: "Mint a development bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.IsProduction() {
			return fmt.Errorf("refusing to mint tokens in %s", cfg.Env)
		}
		tok, err := utils.NewAccessToken(cfg.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
