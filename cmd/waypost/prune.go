package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/traverse-labs/waypost/internal/guard"
)

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention cutoff to the local queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := buildEngine(cfg, st, guard.Noop{}, nil, logger)
			deleted := engine.Prune(cmd.Context())
			fmt.Printf("Pruned: %d records\n", deleted)
			return nil
		},
	}
}
