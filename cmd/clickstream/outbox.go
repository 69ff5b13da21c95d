package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"clickstream/internal/database"
	"clickstream/internal/recorder"
	"clickstream/internal/storage"
)

func newOutboxCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "List events waiting for delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbManager := database.NewDBManager(database.Config{Path: c.cfg.StoragePath})
			db, err := dbManager.Connect()
			if err != nil {
				return err
			}
			defer dbManager.Close()

			store, err := storage.NewSQLiteStore(db)
			if err != nil {
				return err
			}
			entries, err := recorder.LoadOutbox(store)
			if err != nil {
				return err
			}
			buffer, err := recorder.LoadBuffer(store)
			if err != nil {
				return err
			}

			cmd.Printf("Pending immediate events: %d\n", len(entries))
			if len(entries) > 0 {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EVENT ID\tTYPE\tRECORDED AT")
				for _, entry := range entries {
					recordedAt := time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339)
					fmt.Fprintf(w, "%s\t%s\t%s\n", entry.EventID, entry.EventType, recordedAt)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			cmd.Printf("Batch buffer: %d bytes\n", len(buffer))
			return nil
		},
	}
}
