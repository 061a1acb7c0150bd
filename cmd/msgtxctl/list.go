package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"msgtx/tranid"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List in-doubt (prepared) transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()
		return writeInDoubt(cmd.OutOrStdout(), c.factory.XidManager().ListRemoteInDoubts(), listOutput)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(listCmd)
}

type inDoubtEntry struct {
	Xid      string `json:"xid" yaml:"xid"`
	FormatID int32  `json:"format_id" yaml:"format_id"`
	Gtrid    string `json:"gtrid" yaml:"gtrid"`
	Bqual    string `json:"bqual,omitempty" yaml:"bqual,omitempty"`
}

func writeInDoubt(w io.Writer, ids []tranid.PersistentTranID, format string) error {
	entries := make([]inDoubtEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, inDoubtEntry{
			Xid:      id.String(),
			FormatID: id.FormatID(),
			Gtrid:    hex.EncodeToString(id.GlobalTransactionID()),
			Bqual:    hex.EncodeToString(id.BranchQualifier()),
		})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.Xid); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
