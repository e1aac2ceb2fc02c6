package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitMissingArgs(t *testing.T) {
	_, err := execute(t, "submit", "--db", testDB(t))
	require.Error(t, err)
}

func TestSubmitMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	batch := writeFile(t, dir, "mint.yaml", mintBatch)

	_, err := execute(t, "submit", "--db", "", batch)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSubmitCommits(t *testing.T) {
	dir := t.TempDir()
	db := testDB(t)
	mint := writeFile(t, dir, "mint.yaml", mintBatch)
	transfer := writeFile(t, dir, "transfer.yaml", transferBatch)

	out, err := execute(t, "submit", "--db", db, "--events", mint, transfer)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+mint+": committed")
	assert.Contains(t, out, "at height 2")
	assert.Contains(t, out, "at height 3")
	assert.Contains(t, out, "  asset rose##alice@wonderland AmountIncreased 5")
	assert.Contains(t, out, "  asset rose##bob@wonderland Created")
}

func TestSubmitJSON(t *testing.T) {
	dir := t.TempDir()
	db := testDB(t)
	mint := writeFile(t, dir, "mint.yaml", mintBatch)

	out, err := execute(t, "submit", "--db", db, "--format", "json", mint)
	require.NoError(t, err)

	var results []SubmitResult
	decodeData(t, out, &results)
	require.Len(t, results, 1)
	assert.True(t, results[0].Committed)
	assert.Equal(t, uint64(2), results[0].Height)
	assert.Equal(t, []string{"asset rose##alice@wonderland AmountIncreased 5"}, results[0].Events)
	assert.NotEmpty(t, results[0].BatchID)
	assert.Nil(t, results[0].Index)
}

func TestSubmitRejected(t *testing.T) {
	dir := t.TempDir()
	db := testDB(t)
	bad := writeFile(t, dir, "overdraft.yaml", overdraftBatch)
	good := writeFile(t, dir, "mint.yaml", mintBatch)

	out, err := execute(t, "submit", "--db", db, "--format", "json", bad, good)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 batch(es) rejected")

	var results []SubmitResult
	decodeData(t, out, &results)
	require.Len(t, results, 2)

	assert.False(t, results[0].Committed)
	assert.Equal(t, "InsufficientFunds", results[0].Code)
	require.NotNil(t, results[0].Index)
	assert.Equal(t, 1, *results[0].Index)
	assert.Empty(t, results[0].Events)

	// The rejected batch left no block behind.
	assert.True(t, results[1].Committed)
	assert.Equal(t, uint64(2), results[1].Height)
}

func TestSubmitResumesFromStore(t *testing.T) {
	dir := t.TempDir()
	db := testDB(t)
	mint := writeFile(t, dir, "mint.yaml", mintBatch)

	_, err := execute(t, "submit", "--db", db, mint)
	require.NoError(t, err)

	out, err := execute(t, "submit", "--db", db, "--format", "json", mint)
	require.NoError(t, err)
	var results []SubmitResult
	decodeData(t, out, &results)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].Height)

	out, err = execute(t, "query", "balance", "rose##alice@wonderland", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "23\n", out)
}

func TestSubmitInvalidBatchFile(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "instructions: [{teleport: {}}]\n")

	_, err := execute(t, "submit", "--db", testDB(t), bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "teleport")
}
