package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateCommand_Valid(t *testing.T) {
	path := writeFile(t, "tabwrite.yaml", `
database: trades.db
defect_policy: abort
await_timeout: 250ms
tables:
  - name: trades
    columns: [id, price, status]
    hold: true
`)
	opts := &RootOptions{Format: "text", Verbose: true}
	out, err := execute(t, NewValidateCommand(opts), path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidateCommand_InvalidJSON(t *testing.T) {
	path := writeFile(t, "tabwrite.yaml", "defect_policy: ignore\nretry_attempts: 0\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, path, resp.Data.Path)
	assert.NotEmpty(t, resp.Data.Errors)
}

func TestValidateCommand_InvalidText(t *testing.T) {
	path := writeFile(t, "tabwrite.yaml", "log:\n  level: loud\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ "+path)
	assert.Contains(t, err.Error(), "is invalid")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestValidateCommand_SkipsRootConfig(t *testing.T) {
	// A broken --config must not stop validate from reporting on it.
	path := writeFile(t, "tabwrite.yaml", "defect_policy: ignore\n")

	root := NewRootCommand()
	out, err := execute(t, root, "--config", path, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path)
}
