package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeData unmarshals the data of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// testDB returns a fresh database path.
func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.db")
}

const mintBatch = `
authority: alice@wonderland
instructions:
  - mint_asset: {asset: rose##alice@wonderland, amount: "5"}
`

const transferBatch = `
instructions:
  - transfer_asset: {source: rose##alice@wonderland, amount: "3", destination: bob@wonderland}
`

const overdraftBatch = `
instructions:
  - mint_asset: {asset: rose##alice@wonderland, amount: "1"}
  - transfer_asset: {source: rose##alice@wonderland, amount: "1000", destination: bob@wonderland}
`
