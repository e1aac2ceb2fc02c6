package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
)

func TestBatch_JSONRoundTrip(t *testing.T) {
	b := Batch{
		Authority: alice,
		Instructions: []Instruction{
			RegisterDomain{ID: wonderland},
			MintAsset{Asset: aliceRose, Amount: numeric.MustInt(3)},
		},
		Metadata: value.NewMetadata(map[ident.Name]value.Value{ident.MustName("memo"): value.String("hi")}),
	}
	raw, err := json.Marshal(b)
	require.NoError(t, err)

	var got Batch
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, alice, got.Authority)
	require.Len(t, got.Instructions, 2)
	assert.Equal(t, "mint_asset", got.Instructions[1].Kind())
	assert.True(t, b.Metadata.Equal(got.Metadata))

	h1, err := b.Hash()
	require.NoError(t, err)
	h2, err := got.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestBatch_HashDependsOnContent(t *testing.T) {
	a := Batch{Authority: alice, Instructions: []Instruction{RegisterDomain{ID: wonderland}}}
	b := Batch{Authority: bob, Instructions: []Instruction{RegisterDomain{ID: wonderland}}}
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestBlock_ComputeHashChains(t *testing.T) {
	b := Block{Height: 1, BatchHash: "aa", WorldHash: "bb", TimeMS: 10}
	h1, err := b.ComputeHash()
	require.NoError(t, err)

	b.PrevHash = "cc"
	h2, err := b.ComputeHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	// Events and the batch id are not part of the header.
	b.BatchID = "x"
	b.Events = []Event{{Kind: EventCreated, Entity: DomainRef(wonderland)}}
	h3, err := b.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, h2, h3)
}
