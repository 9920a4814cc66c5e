package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/session"
)

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the login accounts and their roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			accounts, err := session.NewAccounts(accountsFrom(cfg.Session))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USERNAME\tROLE")
			for _, a := range accounts.List() {
				fmt.Fprintf(tw, "%s\t%s\n", a.Username, a.Role)
			}
			return tw.Flush()
		},
	}
}
