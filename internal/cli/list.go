package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// listCommand creates the "list" command showing installed packages.
func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List packages installed in the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := c.newServices(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer svcs.Close()

			ids := svcs.pkgCache.Identities()
			if len(ids) == 0 {
				printInfo("No packages installed")
				printDetail("Cache: %s", svcs.pkgCache.Root())
				return nil
			}

			for _, id := range ids {
				fmt.Println(StyleValue.Render(id.ID) + StyleDim.Render("::"+id.Version.String()))
			}
			printNewline()
			printDetail("%d packages in %s", len(ids), svcs.pkgCache.Root())
			return nil
		},
	}
}
