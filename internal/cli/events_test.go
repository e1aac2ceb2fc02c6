package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsByEntity(t *testing.T) {
	db := testDB(t)
	seedLedger(t, db)

	out, err := execute(t, "events", "--db", db, "--entity", "asset:rose##alice@wonderland", "--format", "json")
	require.NoError(t, err)

	var records []EventRecord
	decodeData(t, out, &records)
	require.Len(t, records, 3)
	assert.Equal(t, "Created", records[0].Kind)
	assert.Equal(t, uint64(1), records[0].Height)
	assert.Equal(t, "asset rose##alice@wonderland AmountIncreased 5", records[1].Line)
	assert.Equal(t, "asset rose##alice@wonderland AmountDecreased 3", records[2].Line)
	for _, r := range records {
		assert.Equal(t, "rose##alice@wonderland", r.Entity)
	}
}

func TestEventsByKindAndRange(t *testing.T) {
	db := testDB(t)
	seedLedger(t, db)

	out, err := execute(t, "events", "--db", db, "--kind", "AmountIncreased", "--from", "3")
	require.NoError(t, err)
	assert.Equal(t, "#3.2 asset rose##bob@wonderland AmountIncreased 3\n", out)
}

func TestEventsEmpty(t *testing.T) {
	out, err := execute(t, "events", "--db", testDB(t))
	require.NoError(t, err)
	assert.Equal(t, "No events\n", out)
}

func TestEventsBadFlags(t *testing.T) {
	db := testDB(t)
	for _, args := range [][]string{
		{"--entity", "rose##alice@wonderland"},
		{"--entity", "planet:earth"},
		{"--from", "5", "--to", "2"},
		{"--limit", "-3"},
	} {
		_, err := execute(t, append([]string{"events", "--db", db}, args...)...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
	}
}
