package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/c360studio/semharvest/vocabulary"
)

func statusCmd(loadApp func() (*App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry layer counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			seed := app.manager.Seed()
			overrides := app.manager.Overrides()
			delta := app.manager.Delta()

			fmt.Printf("Registry: %s\n", app.manager.Dir())
			fmt.Printf("  seed variables:     %d\n", len(seed))
			fmt.Printf("  accepted mappings:  %d\n", len(overrides))
			fmt.Printf("  pending suggestions: %d\n", len(delta))

			names, counts := acceptedByDataset(overrides)
			for _, dataset := range names {
				snapshot := app.manager.HarvestSnapshot(dataset)
				fmt.Printf("  %-20s accepted=%d last_harvest=%d params\n",
					dataset, counts[dataset], len(snapshot))
			}
			return nil
		},
	}
}

// acceptedByDataset counts accepted mappings per dataset, names sorted for
// stable output.
func acceptedByDataset(overrides []vocabulary.Mapping) ([]string, map[string]int) {
	counts := map[string]int{}
	for _, m := range overrides {
		counts[m.Dataset]++
	}
	names := make([]string, 0, len(counts))
	for dataset := range counts {
		names = append(names, dataset)
	}
	sort.Strings(names)
	return names, counts
}
