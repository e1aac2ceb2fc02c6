package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ledger", cmd.Use)
	assert.Contains(t, cmd.Long, "permissioned ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "test", "submit", "replay", "status", "blocks", "events", "query", "serve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "genesis", "authority", "log-level", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"submit", []string{"events"}},
		{"status", []string{"rejections"}},
		{"blocks", []string{"from", "limit", "events"}},
		{"events", []string{"entity", "kind", "from", "to", "limit"}},
		{"test", []string{"update", "filter", "golden"}},
		{"serve", []string{"listen", "stdin"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "--%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	_, err := execute(t, "status", "--db", testDB(t), "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestConfigFileAndFlagOverride(t *testing.T) {
	dir := t.TempDir()
	db := dir + "/configured.db"
	cfg := writeFile(t, dir, "ledger.yaml", "database: "+db+"\nauthority: bob@wonderland\n")
	batch := writeFile(t, dir, "transfer.yaml", transferBatch)

	// bob cannot move alice's roses.
	out, err := execute(t, "--config", cfg, "submit", batch)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NotPermitted")

	out, err = execute(t, "--config", cfg, "--authority", "alice@wonderland", "submit", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "committed")

	var status StatusResult
	out, err = execute(t, "--config", cfg, "status", "--format", "json")
	require.NoError(t, err)
	decodeData(t, out, &status)
	assert.Equal(t, uint64(2), status.Height)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "status", "--db", testDB(t), "--log-level", "chatty")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log.level")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", t.TempDir()+"/absent.yaml", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
