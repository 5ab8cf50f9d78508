package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addCommand creates the "add" command, the end-to-end pipeline entry
// point: discover, resolve, install, and load one package.
func (c *CLI) addCommand() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "add <package>[::version]",
		Short: "Resolve, install, and load a package with its dependencies",
		Long: `Add discovers the package's transitive dependency closure across all
configured sources, computes a consistent set of versions, downloads
anything missing into the local cache, and loads the resulting binary
artifacts.

Without a version the newest available release is selected, unless the
configuration pins the package to a default version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			name := args[0]

			svcs, err := c.newServices(ctx, noCache)
			if err != nil {
				return err
			}
			defer svcs.Close()

			prog := newProgress(logger)
			sp := newSpinnerWithContext(ctx, "Adding "+name)
			sp.Start()

			id, err := svcs.set.AddPackage(ctx, name, func(status string) {
				logger.Debug(status)
				sp.SetMessage(status)
			})
			if err != nil {
				sp.Stop()
				if sp.Cancelled() {
					return ctx.Err()
				}
				printError("Could not add %s", name)
				return err
			}
			sp.Stop()

			prog.done(fmt.Sprintf("Added %s", id))
			printSuccess("%s", id)
			for _, a := range svcs.set.Assemblies() {
				printDetail("%s", a.Name)
			}
			printNextStep("Inspect the package", fmt.Sprintf("%s show %s", appName, id))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the feed metadata cache")
	return cmd
}
