package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/config"
)

func newValidateCmd(a *app) *cobra.Command {
	var schemaPath, definitionPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check import definitions against a schema",
		Long: `Parse the schema and bind every definition, reporting mapping errors
without importing anything. --definition accepts a file or a directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				schemaPath = a.settings.Schema
			}
			if definitionPath == "" {
				definitionPath = a.settings.Definitions
			}
			schema, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			defs, err := loadDefinitions(definitionPath)
			if err != nil {
				return err
			}
			engine, err := a.scriptingEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			binder := &config.Binder{Meta: schema, Engine: engine}
			out := cmd.OutOrStdout()
			rows := pterm.TableData{{"Code", "Entity", "Strategy", "Mappings", "Unique keys"}}
			var failed int
			for _, def := range defs {
				cfg, err := binder.Bind(def)
				if err != nil {
					failed++
					fmt.Fprint(out, pterm.Error.Sprintfln("%s: %v", def.Code, err))
					continue
				}
				rows = append(rows, []string{
					cfg.Code,
					cfg.EntityType,
					string(cfg.Strategy),
					fmt.Sprintf("%d", len(cfg.Mappings)),
					fmt.Sprintf("%d", len(cfg.UniqueKeys)),
				})
			}

			if len(rows) > 1 {
				table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, table)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions are invalid", failed, len(defs))
			}
			fmt.Fprint(out, pterm.Success.Sprintfln("%d definitions are valid", len(defs)))
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file (defaults to the schema setting)")
	cmd.Flags().StringVar(&definitionPath, "definition", "", "definition file or directory (defaults to the definitions setting)")
	return cmd
}
