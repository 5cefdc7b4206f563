package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func unknownsCmd(loadApp func() (*App, error)) *cobra.Command {
	var (
		dataset string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "unknowns",
		Short: "List suggested mappings awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			suggestions := app.manager.ListUnknowns(dataset)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(suggestions)
			}

			if len(suggestions) == 0 {
				fmt.Println("No suggestions pending review.")
				return nil
			}
			for _, m := range suggestions {
				fmt.Printf("%-12s %-16s -> %-40s confidence=%.2f\n",
					m.Dataset, m.NativeID, m.CanonicalID, m.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Limit to one dataset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit suggestions as JSON")
	return cmd
}
