package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLedger commits genesis plus a mint and a transfer into db.
func seedLedger(t *testing.T, db string) {
	t.Helper()
	dir := t.TempDir()
	mint := writeFile(t, dir, "mint.yaml", mintBatch)
	transfer := writeFile(t, dir, "transfer.yaml", transferBatch)
	_, err := execute(t, "submit", "--db", db, mint, transfer)
	require.NoError(t, err)
}

func TestBlocksEmptyStore(t *testing.T) {
	out, err := execute(t, "blocks", "--db", testDB(t))
	require.NoError(t, err)
	assert.Equal(t, "No blocks\n", out)
}

func TestBlocksList(t *testing.T) {
	db := testDB(t)
	seedLedger(t, db)

	out, err := execute(t, "blocks", "--db", db, "--format", "json")
	require.NoError(t, err)

	var blocks []BlockSummary
	decodeData(t, out, &blocks)
	require.Len(t, blocks, 3)

	assert.True(t, blocks[0].Genesis)
	assert.Equal(t, 8, blocks[0].EventCount)
	assert.Empty(t, blocks[0].PrevHash)
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, uint64(i+1), blocks[i].Height)
		assert.Equal(t, blocks[i-1].Hash, blocks[i].PrevHash, "block %d chains", blocks[i].Height)
		assert.GreaterOrEqual(t, blocks[i].TimeMS, blocks[i-1].TimeMS)
		assert.False(t, blocks[i].Genesis)
	}
	assert.Nil(t, blocks[1].Events)
}

func TestBlocksRange(t *testing.T) {
	db := testDB(t)
	seedLedger(t, db)

	out, err := execute(t, "blocks", "--db", db, "--from", "2", "--limit", "1", "--events", "--format", "json")
	require.NoError(t, err)

	var blocks []BlockSummary
	decodeData(t, out, &blocks)
	require.Len(t, blocks, 1)
	assert.Equal(t, uint64(2), blocks[0].Height)
	assert.Equal(t, []string{"asset rose##alice@wonderland AmountIncreased 5"}, blocks[0].Events)
	assert.Equal(t, "alice@wonderland", blocks[0].Authority)
	assert.Equal(t, 1, blocks[0].Instructions)
}

func TestBlocksText(t *testing.T) {
	db := testDB(t)
	seedLedger(t, db)

	out, err := execute(t, "blocks", "--db", db, "--events", "--from", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "#3 ")
	assert.Contains(t, out, "by alice@wonderland, 1 instructions, 3 events")
	assert.Contains(t, out, "    asset rose##bob@wonderland Created")
}

func TestBlocksNegativeLimit(t *testing.T) {
	_, err := execute(t, "blocks", "--db", testDB(t), "--limit", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
