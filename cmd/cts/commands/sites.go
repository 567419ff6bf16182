package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbase/cts-browser/internal/jobsync"
)

func newSitesCmd(c *cli) *cobra.Command {
	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "Inspect the clusters jobs can run on",
	}

	sitesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the available sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireEnabled(jobsync.KindSites, c.app.Inputs()); err != nil {
				return err
			}

			res := c.app.Sync.Sites(cmd.Context())
			if res.Err != nil {
				return fmt.Errorf("error fetching sites: %w", res.Err)
			}
			return renderSites(cmd.OutOrStdout(), c.output, res.Data)
		},
	})

	return sitesCmd
}
