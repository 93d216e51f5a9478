package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quellql/quell/internal/compile"
	"github.com/quellql/quell/internal/manifest"
)

// StatementSummary is the displayable form of one compiled descriptor.
type StatementSummary struct {
	Name      string          `json:"name"`
	Kind      string          `json:"kind"` // "read" | "write"
	Template  string          `json:"template"`
	Params    []compile.Param `json:"params,omitempty"`
	Shape     string          `json:"shape,omitempty"`
	ReadsFrom []string        `json:"reads_from,omitempty"`
	Updates   []string        `json:"updates,omitempty"`
}

// CompilationResult holds every compiled statement of one manifest.
type CompilationResult struct {
	Statements []StatementSummary `json:"statements"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <schema-dir> <manifest>",
		Short: "Compile a query manifest into statement descriptors",
		Long: `Compile the statements of a query manifest against a CUE schema.

Each statement is resolved, index-allocated, and rewritten; the command
prints one descriptor summary per statement: its template, parameters,
and read- or write-set.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runCompile(opts *RootOptions, schemaDir, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result, err := compileAll(formatter, schemaDir, manifestPath)
	if err != nil {
		code, msg := errorCode(err)
		if ferr := formatter.Error(code, msg, nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, msg)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(renderSummaries(result.Statements))
}

// compileAll loads schema and manifest and compiles every statement under
// one shared compilation context, so statements sharing a result shape
// share one mapper.
func compileAll(formatter *OutputFormatter, schemaDir, manifestPath string) (*CompilationResult, error) {
	tables, err := LoadSchema(schemaDir)
	if err != nil {
		return nil, err
	}
	formatter.VerboseLog("Loaded %d table(s) from %s", len(tables), schemaDir)

	stmts, err := manifest.Load(manifestPath, tables)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadManifest, Message: err.Error()}
	}
	formatter.VerboseLog("Resolved %d statement(s) from %s", len(stmts), manifestPath)

	ctx := compile.NewContext()
	result := &CompilationResult{}
	for _, stmt := range stmts {
		compiled, err := compile.Compile(ctx, stmt)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
		}
		result.Statements = append(result.Statements, summarize(compiled))
	}
	formatter.VerboseLog("Emitted %d distinct row mapper(s)", ctx.MapperCount())

	return result, nil
}

// summarize renders one descriptor for display.
func summarize(c compile.Compiled) StatementSummary {
	switch s := c.(type) {
	case *compile.ReadStatement:
		return StatementSummary{
			Name:      s.Name(),
			Kind:      "read",
			Template:  s.Template(),
			Params:    s.Params(),
			Shape:     s.Shape().Name,
			ReadsFrom: s.ReadsFrom(),
		}
	case *compile.WriteStatement:
		return StatementSummary{
			Name:     s.Name(),
			Kind:     "write",
			Template: s.Template(),
			Params:   s.Params(),
			Updates:  s.Updates(),
		}
	default:
		return StatementSummary{Name: fmt.Sprintf("%T", c)}
	}
}

// renderSummaries formats descriptors as human-readable text.
func renderSummaries(summaries []StatementSummary) string {
	var sb strings.Builder
	for i, s := range summaries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s (%s)\n", s.Name, s.Kind)
		fmt.Fprintf(&sb, "  template: %s\n", s.Template)
		for _, p := range s.Params {
			if p.Type != "" {
				fmt.Fprintf(&sb, "  param: %s %s %s\n", p.Name, p.Kind, p.Type)
			} else {
				fmt.Fprintf(&sb, "  param: %s %s\n", p.Name, p.Kind)
			}
		}
		if len(s.ReadsFrom) > 0 {
			fmt.Fprintf(&sb, "  readsFrom: {%s}\n", strings.Join(s.ReadsFrom, ", "))
		}
		if len(s.Updates) > 0 {
			fmt.Fprintf(&sb, "  updates: {%s}\n", strings.Join(s.Updates, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// errorCode maps an error to its display code.
func errorCode(err error) (string, string) {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code, le.Message
	}
	return ErrCodeGeneric, err.Error()
}
