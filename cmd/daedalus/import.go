package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/logging"
)

type importFlags struct {
	schema     string
	definition string
	input      string
	store      string
	report     string
	format     string
	charset    string
}

func newImportCmd(a *app) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run an import definition over a local input file",
		Long: `Import a CSV, JSON or XML file into the configured store and print the
outcome. The command fails when the outcome is not successful.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.schema, "schema", "", "schema file (defaults to the schema setting)")
	cmd.Flags().StringVar(&flags.definition, "definition", "", "definition file")
	cmd.Flags().StringVar(&flags.input, "input", "", "input file")
	cmd.Flags().StringVar(&flags.store, "store", "", "store DSN: memory, sqlite://path, postgres://... (defaults to the store.dsn setting)")
	cmd.Flags().StringVar(&flags.report, "report", "", "write the JSON outcome to this file")
	cmd.Flags().StringVar(&flags.format, "format", "", "override the input format of the definition")
	cmd.Flags().StringVar(&flags.charset, "charset", "", "override the input charset of the definition")
	_ = cmd.MarkFlagRequired("definition")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) runImport(cmd *cobra.Command, flags importFlags) error {
	ctx := cmd.Context()
	if flags.schema == "" {
		flags.schema = a.settings.Schema
	}
	if flags.store == "" {
		flags.store = a.settings.Store.DSN
	}

	schema, err := loadSchema(flags.schema)
	if err != nil {
		return err
	}
	def, err := config.LoadDefinition(flags.definition)
	if err != nil {
		return err
	}
	engine, err := a.scriptingEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg, err := (&config.Binder{Meta: schema, Engine: engine}).Bind(def)
	if err != nil {
		return err
	}
	if flags.format != "" {
		cfg.InputFormat = flags.format
	}
	if flags.charset != "" {
		cfg.Charset = flags.charset
	}

	store, release, err := openStore(ctx, flags.store, a.settings.Store.CacheSize, schema, a.logger)
	if err != nil {
		return err
	}
	defer release()

	input, err := os.Open(flags.input)
	if err != nil {
		return err
	}
	defer input.Close()

	imp := importer.New(schema, schema, store, logging.NewZapLogger(a.logger))
	outcome, err := imp.ImportReader(ctx, cfg, input)
	if err != nil {
		return err
	}

	if err := renderOutcome(cmd.OutOrStdout(), outcome); err != nil {
		return err
	}
	if flags.report != "" {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(flags.report, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if !outcome.Success {
		return errImportFailed
	}
	return nil
}
