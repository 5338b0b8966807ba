package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/traverse-labs/waypost/internal/guard"
)

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Run one transmission cycle to completion and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if len(cfg.Endpoints) == 0 {
				return errors.New("no endpoints configured")
			}

			engine := buildEngine(cfg, st, guard.Noop{}, nil, logger)

			result, err := engine.Flush(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Endpoints: %d\n", result.Endpoints)
			fmt.Printf("Succeeded: %d\n", result.Succeeded)
			fmt.Printf("Failed:    %d\n", result.Failed)
			fmt.Printf("Posted:    %d records\n", result.Posted)
			fmt.Printf("Pruned:    %d records\n", result.Pruned)
			fmt.Printf("Duration:  %s\n", result.Duration.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Printf("Error: %s\n", e)
			}

			if result.Failed > 0 {
				return fmt.Errorf("%d of %d endpoints failed", result.Failed, result.Endpoints)
			}
			return nil
		},
	}
}
