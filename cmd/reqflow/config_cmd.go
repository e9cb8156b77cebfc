package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/config"
	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the settings file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings directory",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Dir())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write settings.toml with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(config.Dir(), "settings.toml")
			if _, err := os.Stat(path); err == nil && !force {
				return errdef.New(errdef.CodeConfig, "%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errdef.Wrap(errdef.CodeFilesystem, err, "stat %s", path)
			}
			handle := config.SettingsHandle{Path: path, Format: config.SettingsFormatTOML}
			if err := config.SaveSettings(config.DefaultSettings(), handle); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing settings file")
	cmd.AddCommand(initCmd)
	return cmd
}
