package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func resolveCmd(loadApp func() (*App, error)) *cobra.Command {
	var (
		dataset  string
		nativeID string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one native parameter to its canonical variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			resolved, err := app.manager.Resolve(dataset, nativeID)
			if err != nil {
				return fmt.Errorf("resolve %s:%s: %w", dataset, nativeID, err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resolved)
			}

			fmt.Printf("%s:%s -> %s\n", dataset, nativeID, resolved.Variable.ID)
			if resolved.Variable.ObservedPropertyURI != "" {
				fmt.Printf("  observed property: %s\n", resolved.Variable.ObservedPropertyURI)
			}
			if resolved.Variable.PreferredUnit != "" {
				fmt.Printf("  preferred unit:    %s\n", resolved.Variable.PreferredUnit)
			}
			fmt.Printf("  confidence:        %.2f (%s)\n", resolved.Mapping.Confidence, resolved.Mapping.Provenance.Source)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset the native parameter belongs to")
	cmd.Flags().StringVar(&nativeID, "native", "", "Native parameter id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the resolution as JSON")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("native")
	return cmd
}
