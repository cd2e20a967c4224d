package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover document links and extract metadata from every page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d unique document URLs; saved to %s\n", summary.Discovered, summary.URLListURI)
			fmt.Fprintf(out, "Extracted metadata for %d documents (%d failed); saved to %s\n",
				summary.Extracted, summary.Failed, summary.MetadataURI)
			return nil
		},
	}
}
