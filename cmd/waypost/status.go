package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/traverse-labs/waypost/internal/store"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backlog size, oldest record age, and per-endpoint watermarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			count, err := st.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Backlog: %d records\n", count)

			oldest, ok, err := st.Oldest(ctx)
			switch {
			case errors.Is(err, store.ErrCorruptRecord):
				fmt.Println("Oldest:  <corrupt entry>")
			case err != nil:
				return err
			case ok:
				fmt.Printf("Oldest:  %s (age %s)\n",
					oldest.Timestamp.Format(time.RFC3339),
					time.Since(oldest.Timestamp).Round(time.Second))
			default:
				fmt.Println("Oldest:  <empty>")
			}

			marks, err := st.All(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Endpoints: %d configured\n", len(cfg.Endpoints))
			keys := make([]string, 0, len(marks))
			for k := range marks {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				wm := marks[k]
				if wm.IsZero() {
					fmt.Printf("  %s: never transmitted\n", k)
					continue
				}
				fmt.Printf("  %s: last transmitted %s\n", k, wm.Format(time.RFC3339))
			}

			return nil
		},
	}
}
