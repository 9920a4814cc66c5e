package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/repairdesk/internal/capability"
	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/section"
)

func newCheckCmd() *cobra.Command {
	var dirs []string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate section definitions and the role policy without serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			if len(dirs) > 0 {
				cfg.Definitions.Directories = dirs
			}

			defs, err := loadDefinitions(cfg.Definitions)
			if err != nil {
				return err
			}
			catalog, locale, err := newCatalog(cfg.Table)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if verrs := validateDefinitions(defs, catalog); len(verrs) > 0 {
				for _, ve := range verrs {
					fmt.Fprintln(out, ve.Error())
				}
				return fmt.Errorf("%d definition errors", len(verrs))
			}

			// Building the sections catches what only shows up against the
			// catalog, such as a bad pattern or a fixture without an ID.
			registry := definition.NewRegistry(defs)
			sections, err := section.Load(registry, catalog, section.Options{Locale: locale, PageSizes: cfg.Table.PageSizes})
			if err != nil {
				return err
			}
			policy, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%d sections OK (checksum %s)\n", len(sections.All()), registry.Checksum())
			fmt.Fprintf(out, "%d roles in policy\n", len(policy.Roles()))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "definition directories to check instead of the configured ones")
	return cmd
}
