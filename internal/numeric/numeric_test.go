package numeric

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/ledger/internal/ledgererr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
		scale uint32
	}{
		{"16", "16", 0},
		{"0", "0", 0},
		{"0.00", "0", 0},
		{"1.50", "1.5", 1},
		{"100", "100", 0},
		{"1e3", "1000", 0},
		{"0.001", "0.001", 3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
			assert.Equal(t, tt.scale, q.Scale())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "-0.5", "NaN", "Infinity", "1" + strings.Repeat("0", 38) + "1"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidValue), "got %v", err)
		})
	}
}

func TestParse_BoundsExponent(t *testing.T) {
	for _, input := range []string{
		"1e100000",
		"1e-100000",
		"1e38",
		"1e-39",
		"1.5e38",
		"1e100000000",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidValue), "got %v", err)
		})
	}

	largest, err := Parse("1e37")
	require.NoError(t, err)
	assert.Len(t, largest.String(), 38)

	smallest, err := Parse("1e-38")
	require.NoError(t, err)
	assert.Equal(t, uint32(38), smallest.Scale())
}

func TestAdd_BoundsPlainDigits(t *testing.T) {
	big := MustParse("9e37")
	_, err := big.Add(big)
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidValue), "got %v", err)
}

func TestSub_Insufficient(t *testing.T) {
	_, err := MustInt(3).Sub(MustInt(4))
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInsufficientFunds))
}

func TestAddSub(t *testing.T) {
	sum, err := MustParse("1.25").Add(MustParse("0.75"))
	require.NoError(t, err)
	assert.Equal(t, "2", sum.String())
	assert.Equal(t, uint32(0), sum.Scale())

	diff, err := MustInt(16).Sub(MustInt(16))
	require.NoError(t, err)
	assert.True(t, diff.IsZero())
	assert.True(t, diff.Equal(Zero()))
}

func TestSpecCheck(t *testing.T) {
	assert.NoError(t, Unconstrained().Check(MustParse("0.123456789")))
	assert.NoError(t, Integer().Check(MustInt(16)))
	assert.NoError(t, Integer().Check(MustParse("16.000")))
	assert.NoError(t, Fractional(2).Check(MustParse("1.5")))

	err := Integer().Check(MustParse("0.5"))
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidPrecision))

	err = Fractional(2).Check(MustParse("1.001"))
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidPrecision))
}

func TestSpecEqual(t *testing.T) {
	assert.True(t, Integer().Equal(Fractional(0)))
	assert.False(t, Integer().Equal(Unconstrained()))
	assert.True(t, Unconstrained().Equal(Spec{}))
}

func TestQuantity_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Amount Quantity `json:"amount"`
	}{MustParse("12.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"12.5"}`, string(data))

	var fromString, fromNumber Quantity
	require.NoError(t, json.Unmarshal([]byte(`"7.25"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`7.25`), &fromNumber))
	assert.True(t, fromString.Equal(fromNumber))

	assert.Error(t, json.Unmarshal([]byte(`"-2"`), &fromString))
}

// TestTransferConservation_Property checks that moving any affordable amount
// between two balances conserves their sum and never goes negative.
func TestTransferConservation_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := MustInt(rapid.Int64Range(0, 1_000_000).Draw(rt, "source"))
		dst := MustInt(rapid.Int64Range(0, 1_000_000).Draw(rt, "destination"))
		amount := MustInt(rapid.Int64Range(0, 2_000_000).Draw(rt, "amount"))

		before, err := src.Add(dst)
		require.NoError(rt, err)

		newSrc, err := src.Sub(amount)
		if amount.Cmp(src) > 0 {
			require.True(rt, ledgererr.Is(err, ledgererr.CodeInsufficientFunds))
			return
		}
		require.NoError(rt, err)
		newDst, err := dst.Add(amount)
		require.NoError(rt, err)

		after, err := newSrc.Add(newDst)
		require.NoError(rt, err)
		assert.True(rt, before.Equal(after))
		assert.GreaterOrEqual(rt, newSrc.Cmp(Zero()), 0)
	})
}
