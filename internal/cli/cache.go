package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantlab/pkgref/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package and metadata caches",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand. By default only
// the feed metadata cache is cleared; installed packages survive unless
// --packages is given.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var packages bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached feed metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.ConfigPath)
			if err != nil {
				return err
			}

			metaDir, err := cfg.MetadataCacheDir()
			if err != nil {
				return fmt.Errorf("get metadata cache dir: %w", err)
			}
			if err := os.RemoveAll(metaDir); err != nil {
				return err
			}
			printSuccess("Cleared feed metadata cache")
			printDetail("Directory: %s", metaDir)

			if !packages {
				return nil
			}
			pkgDir, err := cfg.PackageCacheDir()
			if err != nil {
				return fmt.Errorf("get package cache dir: %w", err)
			}
			if err := os.RemoveAll(pkgDir); err != nil {
				return err
			}
			printSuccess("Cleared installed packages")
			printDetail("Directory: %s", pkgDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&packages, "packages", false, "also remove installed packages")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.ConfigPath)
			if err != nil {
				return err
			}

			pkgDir, err := cfg.PackageCacheDir()
			if err != nil {
				return fmt.Errorf("get package cache dir: %w", err)
			}
			metaDir, err := cfg.MetadataCacheDir()
			if err != nil {
				return fmt.Errorf("get metadata cache dir: %w", err)
			}

			printKeyValue("packages", pkgDir)
			printKeyValue("metadata", metaDir)
			return nil
		},
	}
}
