package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func refreshCmd(loadApp func() (*App, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one harvest refresh cycle across all configured catalogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			sources, err := app.Sources()
			if err != nil {
				return err
			}

			report, err := app.orchestrator.Refresh(cmd.Context(), sources)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Printf("Refresh %s: %d dataset(s)\n", report.RunID, len(report.Datasets))
			for _, rep := range report.Sorted() {
				if rep.Error != "" {
					fmt.Printf("  %-20s ERROR: %s\n", rep.Dataset, rep.Error)
					continue
				}
				fmt.Printf("  %-20s harvested=%d accepted=%d suggested=%d unmapped=%d",
					rep.Dataset, rep.Harvested, rep.Accepted, rep.Suggested, rep.Unmapped)
				if rep.Conflicts > 0 {
					fmt.Printf(" conflicts=%d", rep.Conflicts)
				}
				if rep.Rejected > 0 {
					fmt.Printf(" rejected=%d", rep.Rejected)
				}
				fmt.Println()
			}
			if report.Errored() {
				return fmt.Errorf("one or more datasets failed; see report")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	return cmd
}
