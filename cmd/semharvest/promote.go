package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func promoteCmd(loadApp func() (*App, error)) *cobra.Command {
	var (
		dataset   string
		nativeID  string
		canonical string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a suggested mapping into the accepted overrides layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mapping, err := app.manager.Promote(cmd.Context(), dataset, nativeID, canonical, force)
			if err != nil {
				return err
			}

			fmt.Printf("Promoted %s:%s -> %s (confidence %.2f)\n",
				mapping.Dataset, mapping.NativeID, mapping.CanonicalID, mapping.Confidence)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset the native parameter belongs to")
	cmd.Flags().StringVar(&nativeID, "native", "", "Native parameter id")
	cmd.Flags().StringVar(&canonical, "canonical", "", "Canonical variable id to map to")
	cmd.Flags().BoolVar(&force, "force", false, "Replace a conflicting accepted mapping")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("native")
	_ = cmd.MarkFlagRequired("canonical")
	return cmd
}
