package ident

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const alicePK = "ed0120CE7FA46C9DCE7EA4B125E2E36BDB63EA33073E7590AC92816AE1E861B7048B03"

func TestParseName_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"at sign", "alice@home"},
		{"hash", "rose#1"},
		{"space", "white rabbit"},
		{"tab", "a\tb"},
		{"newline", "a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseName(tt.input)
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.input, pe.Input)
		})
	}
}

func TestParseName_NFC(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	decomposed, err := ParseName("cafe\u0301")
	require.NoError(t, err)
	composed, err := ParseName("caf\u00e9")
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestParseAccountID(t *testing.T) {
	id, err := ParseAccountID(alicePK + "@wonderland")
	require.NoError(t, err)

	assert.Equal(t, alicePK, id.Signatory.String())
	assert.Equal(t, "wonderland", id.Domain.String())
	assert.Equal(t, alicePK+"@wonderland", id.String())
}

func TestParseAccountID_Malformed(t *testing.T) {
	for _, input := range []string{"alice", "@wonderland", "alice@", "a@b@c", "alice@won derland"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAccountID(input)
			require.Error(t, err)
		})
	}
}

func TestSameSignatoryDifferentDomains(t *testing.T) {
	a := MustAccountID("alice@wonderland")
	b := MustAccountID("alice@chess")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a.Signatory, b.Signatory)
}

func TestParseAssetID_ShortForm(t *testing.T) {
	id, err := ParseAssetID("rose##alice@wonderland")
	require.NoError(t, err)

	assert.Equal(t, MustAssetDefinitionID("rose#wonderland"), id.Definition)
	assert.Equal(t, MustAccountID("alice@wonderland"), id.Account)
	assert.Equal(t, "rose##alice@wonderland", id.String())
	assert.Equal(t, "rose#wonderland#alice@wonderland", id.LongString())
}

func TestParseAssetID_LongForm(t *testing.T) {
	id, err := ParseAssetID("money#wonderland#magnus@chess")
	require.NoError(t, err)

	assert.Equal(t, "wonderland", id.Definition.Domain.String())
	assert.Equal(t, "chess", id.Account.Domain.String())
	assert.Equal(t, "money#wonderland#magnus@chess", id.String())
}

func TestParseAssetID_LongFormSameDomainEqualsShort(t *testing.T) {
	long := MustAssetID("pawn#chess#alice@chess")
	short := MustAssetID("pawn##alice@chess")
	assert.Equal(t, short, long)
}

func TestParseAssetID_Malformed(t *testing.T) {
	for _, input := range []string{"rose", "rose#wonderland", "#wonderland#alice@wonderland", "rose##alice"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAssetID(input)
			require.Error(t, err)
		})
	}
}

func TestIDs_JSONText(t *testing.T) {
	type holder struct {
		Account AccountID         `json:"account"`
		Asset   AssetID           `json:"asset"`
		Def     AssetDefinitionID `json:"def"`
		Owners  map[DomainID]int  `json:"owners"`
	}

	in := holder{
		Account: MustAccountID("bob@chess"),
		Asset:   MustAssetID("pawn##bob@chess"),
		Def:     MustAssetDefinitionID("pawn#chess"),
		Owners:  map[DomainID]int{MustDomainID("chess"): 1},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"bob@chess","asset":"pawn##bob@chess","def":"pawn#chess","owners":{"chess":1}}`, string(data))

	var out holder
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func nameGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9_.\-]{1,12}`)
}

// TestRoundTrip_Property checks parse(format(id)) == id for every id kind and
// both asset id forms.
func TestRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sig := MustName(nameGen().Draw(rt, "signatory"))
		accDomain := MustDomainID(nameGen().Draw(rt, "account_domain"))
		defDomain := MustDomainID(nameGen().Draw(rt, "definition_domain"))
		assetName := MustName(nameGen().Draw(rt, "asset"))

		account := NewAccountID(sig, accDomain)
		def := NewAssetDefinitionID(assetName, defDomain)
		asset := NewAssetID(def, account)

		gotAccount, err := ParseAccountID(account.String())
		require.NoError(rt, err)
		assert.Equal(rt, account, gotAccount)

		gotDef, err := ParseAssetDefinitionID(def.String())
		require.NoError(rt, err)
		assert.Equal(rt, def, gotDef)

		gotShort, err := ParseAssetID(asset.String())
		require.NoError(rt, err)
		assert.Equal(rt, asset, gotShort)

		gotLong, err := ParseAssetID(asset.LongString())
		require.NoError(rt, err)
		assert.Equal(rt, asset, gotLong)

		gotDomain, err := ParseDomainID(accDomain.String())
		require.NoError(rt, err)
		assert.Equal(rt, accDomain, gotDomain)

		role := MustRoleID(assetName.String())
		gotRole, err := ParseRoleID(role.String())
		require.NoError(rt, err)
		assert.Equal(rt, role, gotRole)

		trig := MustTriggerID(assetName.String())
		gotTrig, err := ParseTriggerID(trig.String())
		require.NoError(rt, err)
		assert.Equal(rt, trig, gotTrig)
	})
}
