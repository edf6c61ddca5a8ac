package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString_RejectsMalformedInput(t *testing.T) {
	_, err := FromString("not-a-number")
	require.Error(t, err)
}

func TestMustFromString_PanicsOnMalformedInput(t *testing.T) {
	assert.Panics(t, func() { MustFromString("nope") })
}

func TestArithmetic(t *testing.T) {
	a := MustFromString("10.5")
	b := MustFromString("3.25")

	assert.True(t, a.Add(b).Equal(MustFromString("13.75")))
	assert.True(t, a.Sub(b).Equal(MustFromString("7.25")))
	assert.True(t, a.Mul(b).Equal(MustFromString("34.125")))
}

func TestDiv_ByZeroReturnsZeroAndFalse(t *testing.T) {
	a := MustFromString("10")
	result, ok := a.Div(Zero)
	assert.False(t, ok)
	assert.True(t, result.IsZero())
}

func TestDiv_NormalCase(t *testing.T) {
	a := MustFromString("10")
	b := MustFromString("4")
	result, ok := a.Div(b)
	require.True(t, ok)
	assert.True(t, result.Equal(MustFromString("2.5")))
}

func TestComparisons(t *testing.T) {
	a := MustFromString("5")
	b := MustFromString("10")

	assert.True(t, a.LessThan(b))
	assert.True(t, b.GreaterThan(a))
	assert.True(t, a.LessThanOrEqual(a))
	assert.True(t, a.GreaterThanOrEqual(a))
	assert.True(t, a.Neg().IsNegative())
	assert.True(t, a.Neg().Abs().Equal(a))
}

func TestMinMaxClamp(t *testing.T) {
	lo := MustFromString("0")
	hi := MustFromString("100")

	assert.True(t, Min(lo, hi).Equal(lo))
	assert.True(t, Max(lo, hi).Equal(hi))
	assert.True(t, Clamp(MustFromString("-5"), lo, hi).Equal(lo))
	assert.True(t, Clamp(MustFromString("500"), lo, hi).Equal(hi))
	assert.True(t, Clamp(MustFromString("50"), lo, hi).Equal(MustFromString("50")))
}

func TestFromFloat_RoundTripsThroughFloat64(t *testing.T) {
	d := FromFloat(12.34)
	assert.InDelta(t, 12.34, d.Float64(), 0.0001)
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Value Decimal `json:"value"`
	}
	w := wrapper{Value: MustFromString("42.75")}

	raw, err := json.Marshal(w)
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, w.Value.Equal(out.Value))
}

func TestString(t *testing.T) {
	assert.Equal(t, "3.14", MustFromString("3.14").String())
}

func TestRoundDownToLot(t *testing.T) {
	lot := MustFromString("0.001")
	assert.True(t, RoundDownToLot(MustFromString("0.1234567"), lot).Equal(MustFromString("0.123")))
	assert.True(t, RoundDownToLot(MustFromString("0.1"), lot).Equal(MustFromString("0.1")))
	assert.True(t, RoundDownToLot(MustFromString("0.0004"), lot).IsZero())
	assert.True(t, RoundDownToLot(MustFromString("5"), Zero).Equal(MustFromString("5")))
}

func TestPercentageDiff(t *testing.T) {
	diff, ok := PercentageDiff(MustFromString("110"), MustFromString("100"))
	require.True(t, ok)
	assert.True(t, diff.Equal(MustFromString("0.1")))

	_, ok = PercentageDiff(MustFromString("1"), Zero)
	assert.False(t, ok)
}
