package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"noindex-seo/internal/models"
	"noindex-seo/internal/robots"
	"noindex-seo/internal/settings"
)

func newMigrateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored options to the current format",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer e.Close()

			migrated, err := e.settings.CheckMigration(cmd.Context())
			if err != nil {
				return err
			}
			if migrated {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated to version %d\n", settings.CurrentVersion)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
			}
			return nil
		},
	}
}

func newUninstallCmd(g *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Delete every stored option and per-item override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete settings without --yes")
			}
			e, err := openEnv(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer e.Close()

			rep, err := e.settings.Uninstall(cmd.Context())
			if err != nil {
				return err
			}
			e.log.WithFields(map[string]any{"options": rep.Options, "meta": rep.Meta}).Infof("uninstalled")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newSettingsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show, export or import the global robots settings",
	}
	cmd.AddCommand(newSettingsShowCmd(g), newSettingsExportCmd(g), newSettingsImportCmd(g))
	return cmd
}

func newSettingsShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the enabled directives per context",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg, err := e.settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "method: %s\ngranular: %t\n", cfg.Method, cfg.GranularEnabled)
			for _, c := range models.AllContexts {
				if set := robots.CollectActive(c, cfg); len(set) > 0 {
					fmt.Fprintf(out, "%-15s %s\n", c, set)
				}
			}
			return nil
		},
	}
}

func newSettingsExportCmd(g *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the settings as yaml or json to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg, err := e.settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			return encodeSettings(cmd.OutOrStdout(), format, cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json)")
	return cmd
}

func newSettingsImportCmd(g *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the settings with an exported yaml or json file",
		Long: `import saves a previously exported file the same way the settings screen
does: unknown keys are ignored and header-only contexts are cleared unless
the method includes the header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			cfg, err := decodeSettings(r)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.settings.Save(cmd.Context(), settings.FormFromConfig(cfg)); err != nil {
				return err
			}
			e.log.Infof("settings imported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "file to read (- for stdin)")
	return cmd
}

func encodeSettings(w io.Writer, format string, cfg models.GlobalConfig) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

// decodeSettings accepts yaml, and json as its subset.
func decodeSettings(r io.Reader) (models.GlobalConfig, error) {
	var cfg models.GlobalConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode settings: %w", err)
	}
	return cfg, nil
}
