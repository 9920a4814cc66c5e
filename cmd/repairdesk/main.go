// Package main is the entry point for the repair desk server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "repairdesk <command>",
		Short:         "Repair shop back office: section tables, record dialogs, and role navigation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (defaults and REPAIRDESK_* env when empty)")

	root.AddCommand(newServeCmd(), newCheckCmd(), newAccountsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadDefinitions reads the configured definition directories, or the
// definitions compiled into the binary when none are configured.
func loadDefinitions(cfg config.DefinitionsConfig) ([]model.SectionDefinition, error) {
	loader := definition.NewLoader()
	if len(cfg.Directories) == 0 {
		return loader.LoadFS(definition.Embedded())
	}
	return loader.LoadAll(cfg.Directories)
}

// newCatalog builds the renderer and validator catalog for the table locale.
func newCatalog(cfg config.TableConfig) (*section.Catalog, language.Tag, error) {
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return nil, language.Und, fmt.Errorf("table locale %q: %w", cfg.Locale, err)
	}
	return section.NewCatalog(tag), tag, nil
}

// validateDefinitions checks defs against the catalog's renderer and
// validator names.
func validateDefinitions(defs []model.SectionDefinition, catalog *section.Catalog) []definition.VError {
	v := definition.NewValidator().WithCatalog(catalog.RendererNames(), catalog.ValidatorNames())
	return v.Validate(defs)
}

// accountsFrom converts configured accounts. An empty list keeps the demo
// accounts.
func accountsFrom(cfg config.SessionConfig) []session.Account {
	if len(cfg.Accounts) == 0 {
		return session.DefaultAccounts()
	}
	out := make([]session.Account, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		out[i] = session.Account{Username: a.Username, Password: a.Password, Role: a.Role}
	}
	return out
}
