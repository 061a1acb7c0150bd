package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <xid>",
	Short: "Commit an in-doubt transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolve(cmd, args[0], true)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <xid>",
	Short: "Roll back an in-doubt transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolve(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(commitCmd, rollbackCmd)
}

func resolve(cmd *cobra.Command, xid string, commit bool) error {
	ctx := cmd.Context()
	c, err := openCoordinator(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	xids := c.factory.XidManager()
	if commit {
		err = xids.CommitPrepared(ctx, xid)
	} else {
		err = xids.RollbackPrepared(ctx, xid)
	}
	if err != nil {
		return err
	}
	verb := "rolled back"
	if commit {
		verb = "committed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, xid)
	return nil
}
