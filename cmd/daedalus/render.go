package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/importer"
)

const maxListedIDs = 20

// renderOutcome prints a summary of outcome, its imported IDs and a table of
// failures.
func renderOutcome(w io.Writer, outcome *importer.Outcome) error {
	fmt.Fprint(w, pterm.DefaultSection.Sprint("Import "+outcome.ConfigurationCode))

	if outcome.Success {
		fmt.Fprint(w, pterm.Success.Sprintfln("processed %d rows, imported %d entities", outcome.Processed, len(outcome.ImportedIDs)))
	} else {
		fmt.Fprint(w, pterm.Error.Sprintfln("processed %d rows, imported %d entities", outcome.Processed, len(outcome.ImportedIDs)))
	}
	if outcome.ErrorMessage != "" {
		fmt.Fprint(w, pterm.Warning.Sprintfln("%s", outcome.ErrorMessage))
	}

	if len(outcome.ImportedIDs) > 0 {
		ids := outcome.ImportedIDs
		suffix := ""
		if len(ids) > maxListedIDs {
			suffix = fmt.Sprintf(" (and %d more)", len(ids)-maxListedIDs)
			ids = ids[:maxListedIDs]
		}
		fmt.Fprint(w, pterm.Info.Sprintfln("imported: %s%s", strings.Join(ids, ", "), suffix))
	}

	if len(outcome.Failures) == 0 {
		return nil
	}
	rows := pterm.TableData{{"Row", "Kind", "Message"}}
	for _, f := range outcome.Failures {
		row := "-"
		if f.Item != nil {
			row = fmt.Sprintf("%d", f.ItemIndex)
		}
		rows = append(rows, []string{row, string(f.Kind), f.Message})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)

	var counts []string
	for _, kind := range daedaluserrors.Kinds {
		if n := len(outcome.FailuresOf(kind)); n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	fmt.Fprint(w, pterm.Info.Sprintfln("failures by kind: %s", strings.Join(counts, ", ")))
	return nil
}
