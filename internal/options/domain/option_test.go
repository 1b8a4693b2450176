package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCall(collateral, strike uint64) *Option {
	return NewOption(1, "ST1WRITER", WriteParams{
		Asset:            "ST1TOKEN.usda-token",
		CollateralAmount: collateral,
		StrikePrice:      strike,
		Premium:          10,
		Expiry:           200,
		Type:             OptionTypeCall,
	})
}

func TestSettlementCall(t *testing.T) {
	o := newCall(1000, 1000)

	cases := []struct {
		price             uint64
		payout, remainder uint64
	}{
		{1500, 500, 500},
		{800, 0, 1000},
		{1000, 0, 1000},
		{5000, 1000, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("price_%d", tc.price), func(t *testing.T) {
			payout, remainder := o.Settlement(tc.price)
			assert.Equal(t, tc.payout, payout)
			assert.Equal(t, tc.remainder, remainder)
			assert.Equal(t, o.CollateralAmount, payout+remainder)
		})
	}
}

func TestSettlementPut(t *testing.T) {
	o := newCall(300, 1000)
	o.Type = OptionTypePut

	payout, remainder := o.Settlement(800)
	assert.Equal(t, uint64(200), payout)
	assert.Equal(t, uint64(100), remainder)

	payout, remainder = o.Settlement(1200)
	assert.Zero(t, payout)
	assert.Equal(t, uint64(300), remainder)

	// 亏损超过抵押时以抵押为上限
	payout, remainder = o.Settlement(0)
	assert.Equal(t, uint64(300), payout)
	assert.Zero(t, remainder)
}

func TestSettlementConservesCollateral(t *testing.T) {
	prices := []uint64{0, 1, 999, 1000, 1001, 1 << 40, ^uint64(0)}
	for _, typ := range []OptionType{OptionTypeCall, OptionTypePut} {
		for _, c := range []uint64{0, 1, 500, 1000, ^uint64(0)} {
			o := newCall(c, 1000)
			o.Type = typ
			for _, p := range prices {
				payout, remainder := o.Settlement(p)
				assert.Equal(t, c, payout+remainder, "type=%s collateral=%d price=%d", typ, c, p)
				assert.LessOrEqual(t, payout, c)
			}
		}
	}
}

func TestAssignHolder(t *testing.T) {
	o := newCall(1000, 1000)

	require.ErrorIs(t, o.AssignHolder("ST1BUYER", 200), ErrOptionExpired)
	require.NoError(t, o.AssignHolder("ST1BUYER", 199))
	assert.Equal(t, "ST1BUYER", o.Holder)

	err := o.AssignHolder("ST1OTHER", 10)
	assert.ErrorIs(t, err, ErrAlreadyHeld)
	assert.Equal(t, "ST1BUYER", o.Holder)
}

func TestCheckExercisable(t *testing.T) {
	o := newCall(1000, 1000)
	assert.ErrorIs(t, o.CheckExercisable("ST1BUYER", 100), ErrNotHolder)

	require.NoError(t, o.AssignHolder("ST1BUYER", 100))
	assert.ErrorIs(t, o.CheckExercisable("ST1WRITER", 100), ErrNotHolder)
	assert.ErrorIs(t, o.CheckExercisable("ST1BUYER", 200), ErrOptionExpired)
	require.NoError(t, o.CheckExercisable("ST1BUYER", 199))

	o.MarkExercised()
	assert.Equal(t, OptionStateExercised, o.State)
	assert.ErrorIs(t, o.CheckExercisable("ST1BUYER", 100), ErrAlreadyExercised)
}

func TestCheckAsset(t *testing.T) {
	o := newCall(1000, 1000)
	assert.NoError(t, o.CheckAsset("ST1TOKEN.usda-token"))
	assert.ErrorIs(t, o.CheckAsset("ST1TOKEN.other"), ErrAssetMismatch)
}

func TestOptionJSON(t *testing.T) {
	o := newCall(1000, 1000)
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"option_type":"CALL"`)
	assert.Contains(t, string(data), `"state":"ACTIVE"`)
	assert.NotContains(t, string(data), "holder")

	var back Option
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *o, back)
}

func TestParseOptionType(t *testing.T) {
	typ, err := ParseOptionType("put")
	require.NoError(t, err)
	assert.Equal(t, OptionTypePut, typ)

	_, err = ParseOptionType("STRADDLE")
	assert.ErrorIs(t, err, ErrInvalidOptionType)
	assert.False(t, OptionType(9).Valid())
}

func TestErrorMatching(t *testing.T) {
	wrapped := ErrTransferFailed.Wrap(errors.New("insufficient balance"))
	assert.ErrorIs(t, wrapped, ErrTransferFailed)
	assert.NotErrorIs(t, wrapped, ErrOwnerOnly)
	assert.Contains(t, wrapped.Error(), "insufficient balance")

	kind, ok := KindOf(fmt.Errorf("write: %w", ErrListFull))
	require.True(t, ok)
	assert.Equal(t, KindCapacity, kind)
	assert.Equal(t, uint32(114), CodeOf(ErrListFull))
	assert.Zero(t, CodeOf(errors.New("plain")))
}
