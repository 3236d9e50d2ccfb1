package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store population counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "status: open store")
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		fmt.Printf("unprocessed records: %d\n", counts.Unprocessed)
		fmt.Printf("linked records:      %d\n", counts.Linked)
		fmt.Printf("canonical persons:   %d\n", counts.Canonical)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
