package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/GriffinCanCode/spectra/internal/capture"
	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the capture sources accepted by --source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tDESCRIPTION")
			for _, s := range capture.Sources() {
				fmt.Fprintf(w, "%s\t%s\n", s.Pattern, s.Description)
			}
			return w.Flush()
		},
	}
}
