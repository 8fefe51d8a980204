package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/backlog/internal/config"
	"github.com/mesh-intelligence/backlog/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize backlog storage",
		Long: "Create the configuration directory with a default config.yaml, then\n" +
			"create and migrate the store. Existing files are left untouched.",
		Args: exactArgs(0),
		// init resolves its own directory before any config exists.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, a)
		},
	}
}

func runInit(cmd *cobra.Command, a *app) error {
	configDir, err := paths.LocalConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	written, err := config.WriteDefault(configDir, a.flags.dataDir)
	if err != nil {
		return err
	}
	if err := a.loadFrom(cmd, configDir); err != nil {
		return err
	}

	engine, err := a.openEngine(cmd.Context())
	if err != nil {
		return err
	}
	if err := engine.Close(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	if written {
		a.logger.Debug("wrote default config", "path", filepath.Join(configDir, config.FileName))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backlog initialized in %s\n", configDir)
	return nil
}
