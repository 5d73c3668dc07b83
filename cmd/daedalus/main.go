package main

import (
	"errors"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/settings"
)

// errImportFailed signals an unsuccessful outcome that was already rendered.
var errImportFailed = errors.New("import was not successful")

type app struct {
	configFile string
	envFiles   []string

	settings *settings.Settings
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "daedalus",
		Short: "Import structured data into entity graphs",
		Long: `daedalus - mapping-driven data import.

Reads CSV, JSON or XML input, maps every row onto an entity graph described by
a schema and an import definition, and stores the result.

Examples:
  daedalus validate --schema schema.yaml --definition definitions/orders.yaml
  daedalus import --schema schema.yaml --definition orders.yaml --input orders.csv
  daedalus worker --config daedalus.yaml
  daedalus report 6f1c0f9e-8d1b-4d4e-9c55-0d2f2a3b7e11`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "settings file (yaml, json or toml)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "env files to load instead of ./.env")

	root.AddCommand(
		newValidateCmd(a),
		newImportCmd(a),
		newSubmitCmd(a),
		newWorkerCmd(a),
		newReportCmd(a),
	)
	return root
}

func (a *app) init() error {
	s, err := settings.Load(a.configFile, a.envFiles...)
	if err != nil {
		return err
	}
	logger, err := s.Logger()
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = logger
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errImportFailed) {
			pterm.Error.Println(err.Error())
		}
		os.Exit(1)
	}
}
