package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

// showCommand creates the "show" command printing package details.
func (c *CLI) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <package>[::version]",
		Short: "Show details of an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := c.newServices(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer svcs.Close()

			id, err := pkgid.Parse(args[0])
			if err != nil {
				return err
			}
			if !id.Pinned() {
				versions := svcs.pkgCache.Versions(id.ID)
				if len(versions) == 0 {
					return errors.New(errors.ErrCodePackageNotFound, "%s is not installed", id.ID)
				}
				id = pkgid.New(id.ID, versions[len(versions)-1])
			}

			man, err := svcs.pkgCache.Manifest(id)
			if err != nil {
				return err
			}

			printKeyValue("package", man.ID)
			printKeyValue("version", id.Version.String())
			printKeyValue("listed", strconv.FormatBool(man.Listed))
			printKeyValue("location", svcs.pkgCache.EntryDir(id))

			if platforms := installedPlatforms(svcs.pkgCache.EntryDir(id)); len(platforms) > 0 {
				printKeyValue("platforms", strings.Join(platforms, ", "))
			}

			deps, err := man.DependencyList()
			if err != nil {
				return err
			}
			if len(deps) == 0 {
				printDetail("no dependencies")
				return nil
			}
			printNewline()
			printInfo("Dependencies")
			for _, d := range deps {
				printDetail("%s %s", d.ID, d.Range)
			}
			return nil
		},
	}
}

// installedPlatforms lists the platform monikers a cached package ships
// binaries for.
func installedPlatforms(entryDir string) []string {
	entries, err := os.ReadDir(filepath.Join(entryDir, "lib"))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}
