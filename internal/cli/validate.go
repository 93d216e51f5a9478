package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quellql/quell/internal/compile"
	"github.com/quellql/quell/internal/manifest"
)

// ValidationIssue is one problem found during validation.
type ValidationIssue struct {
	Query   string `json:"query,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir> <manifest>",
		Short: "Validate a schema and manifest without emitting descriptors",
		Long: `Validate a CUE schema and query manifest.

Every query is resolved and compiled; problems are collected across the
whole manifest instead of stopping at the first. Nothing is emitted on
success.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	tables, err := LoadSchema(schemaDir)
	if err != nil {
		code, msg := errorCode(err)
		if ferr := formatter.Error(code, msg, nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, msg)
	}
	formatter.VerboseLog("Loaded %d table(s) from %s", len(tables), schemaDir)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		msg := fmt.Sprintf("reading manifest: %v", err)
		if ferr := formatter.Error(ErrCodeNotFound, msg, nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, msg)
	}

	doc, err := manifest.ParseDocument(data)
	if err != nil {
		if ferr := formatter.Error(ErrCodeBadManifest, err.Error(), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, err.Error())
	}

	// Collect issues across every query rather than stopping at the first.
	var issues []ValidationIssue
	ctx := compile.NewContext()
	for _, q := range doc.Queries {
		stmt, err := manifest.ResolveQuery(q, tables)
		if err != nil {
			issues = append(issues, ValidationIssue{Query: q.Name, Code: ErrCodeBadManifest, Message: err.Error()})
			continue
		}
		if _, err := compile.Compile(ctx, stmt); err != nil {
			issues = append(issues, ValidationIssue{Query: q.Name, Code: ErrCodeCompile, Message: err.Error()})
		}
	}

	result := &ValidationResult{Valid: len(issues) == 0, Issues: issues}
	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Valid {
		formatter.VerboseLog("Validated %d statement(s)", len(doc.Queries))
		if err := formatter.Success(fmt.Sprintf("OK: %d statement(s) valid", len(doc.Queries))); err != nil {
			return err
		}
	} else {
		for _, issue := range issues {
			if issue.Query != "" {
				fmt.Fprintf(formatter.Writer, "Error [%s] %s: %s\n", issue.Code, issue.Query, issue.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "Error [%s]: %s\n", issue.Code, issue.Message)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation issue(s)", len(issues)))
	}
	return nil
}
