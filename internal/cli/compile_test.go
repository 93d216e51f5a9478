package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with the given arguments, capturing
// stdout and stderr.
func runCLI(args ...string) (string, string, error) {
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestCompileCommand_TextOutput(t *testing.T) {
	stdout, _, err := runCLI("compile", "testdata/schema", "testdata/queries.yaml")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "compile_text", []byte(stdout))
}

func TestCompileCommand_JSONOutput(t *testing.T) {
	stdout, _, err := runCLI("compile", "--format", "json", "testdata/schema", "testdata/queries.yaml")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))

	require.Len(t, result.Statements, 2)
	assert.Equal(t, "usersByIDs", result.Statements[0].Name)
	assert.Equal(t, "read", result.Statements[0].Kind)
	assert.Equal(t, "users", result.Statements[0].Shape)
	assert.Equal(t, []string{"users"}, result.Statements[0].ReadsFrom)
	assert.Equal(t, "renameUser", result.Statements[1].Name)
	assert.Equal(t, []string{"users"}, result.Statements[1].Updates)
}

func TestCompileCommand_VerboseLogsToStderr(t *testing.T) {
	stdout, stderr, err := runCLI("compile", "--verbose", "--format", "json", "testdata/schema", "testdata/queries.yaml")
	require.NoError(t, err)

	// Stdout must stay valid JSON; diagnostics land on stderr.
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Contains(t, stderr, "Loaded 2 table(s)")
	assert.Contains(t, stderr, "Resolved 2 statement(s)")
}

func TestCompileCommand_MissingSchemaDir(t *testing.T) {
	stdout, _, err := runCLI("compile", "testdata/nope", "testdata/queries.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeNotFound)
}

func TestCompileCommand_BadManifest(t *testing.T) {
	stdout, _, err := runCLI("compile", "testdata/schema", "testdata/queries_invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, stdout, ErrCodeBadManifest)
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, _, err := runCLI("compile", "--format", "xml", "testdata/schema", "testdata/queries.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
