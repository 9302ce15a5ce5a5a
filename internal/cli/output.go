package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter prints one command result. JSON output is a single
// CLIOutput envelope on stdout; table output prints rows on stdout and
// errors and warnings on stderr.
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	warnings []types.CLIWarning
	stdout   io.Writer
	stderr   io.Writer
}

func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		traceID:  uuid.New().String(),
		warnings: []types.CLIWarning{},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// AddWarning attaches a warning to the result written next
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{Code: code, Message: message, Severity: severity})
}

func (w *OutputWriter) envelope(command string, data interface{}, errs ...types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

// WriteSuccess prints data. In table mode, data without a table form is
// printed as the JSON envelope.
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, data))
	}

	var renderer types.TableRenderer
	switch v := data.(type) {
	case types.TableRenderable:
		renderer = v.AsTableRenderer()
	case types.TableRenderer:
		renderer = v
	default:
		return w.writeJSON(w.envelope(command, data))
	}
	w.renderTable(renderer)
	w.logWarnings()
	return nil
}

// WriteError prints a failed result
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, nil, cliErr))
	}
	fmt.Fprintf(w.stderr, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	w.logWarnings()
	return nil
}

// Fail writes err as the command's result and returns the error that
// makes the process exit with the matching status
func (w *OutputWriter) Fail(command string, err error) error {
	cliErr := utils.AsCLIError(err)
	if werr := w.WriteError(command, cliErr); werr != nil {
		return werr
	}
	return &exitError{code: utils.GetExitCode(cliErr.Code)}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	enc := json.NewEncoder(w.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.stdout, renderer.EmptyMessage())
		}
		return
	}

	table := tablewriter.NewWriter(w.stdout)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

func (w *OutputWriter) logWarnings() {
	for _, warn := range w.warnings {
		w.Log("warning: %s", warn.Message)
	}
}

// Log writes to stderr unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.stderr, format+"\n", args...)
	}
}

// Verbose writes to stderr with --verbose
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
