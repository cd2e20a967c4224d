package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Only collect document links and write the URL list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls, uri, err := appInstance.Discover(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover links: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d unique document URLs; saved to %s\n", len(urls), uri)
			return nil
		},
	}
}
