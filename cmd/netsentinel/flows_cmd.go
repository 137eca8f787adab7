package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netsentinel/agent/internal/config"
	"github.com/netsentinel/agent/internal/store"
)

// newFlowsCommand implements spec.md §6's `flows --limit N` subcommand:
// print the last N stored index rows without decrypting them.
func newFlowsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Print the most recently stored flow index rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			key, err := store.LoadOrCreateKeyFile(cfg.Store.KeyPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path, key)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.QueryFlows(limit)
			if err != nil {
				return err
			}

			for _, row := range rows {
				fmt.Printf("%d\t%s\t%s:%d -> %s:%d\t%d bytes\n",
					row.ID, row.Proto, row.SrcIP, row.SrcPort, row.DstIP, row.DstPort, row.Bytes)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of rows to print")
	return cmd
}
