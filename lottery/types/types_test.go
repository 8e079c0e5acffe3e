package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func TestRoundState_WireCodes(t *testing.T) {
	// The integer encoding is a contract with the chain.
	assert.Equal(t, uint8(0), uint8(Waiting))
	assert.Equal(t, uint8(1), uint8(Betting))
	assert.Equal(t, uint8(2), uint8(Drawing))
	assert.Equal(t, uint8(3), uint8(Completed))
	assert.Equal(t, uint8(4), uint8(Refunded))
}

func TestRoundState_Names(t *testing.T) {
	assert.Equal(t, "DRAWING", Drawing.String())
	assert.Equal(t, "drawing", Drawing.Label())
	assert.Equal(t, "UNKNOWN", RoundState(42).String())
}

func TestLotteryRound_CopyIsDeep(t *testing.T) {
	winner := common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc")
	r := &LotteryRound{
		RoundID:  7,
		TotalPot: big.NewInt(1000),
		Winner:   &winner,
		State:    Completed,
	}
	dup := r.Copy()
	require.NotNil(t, dup)
	dup.TotalPot.SetInt64(1)
	*dup.Winner = common.Address{}
	assert.Equal(t, int64(1000), r.TotalPot.Int64())
	assert.Equal(t, winner, *r.Winner)
}

func TestLotteryRound_CopyNil(t *testing.T) {
	var r *LotteryRound
	if r.Copy() != nil {
		t.Fatal("expected nil copy of nil round")
	}
}

func TestContractConfig_CopyIsDeep(t *testing.T) {
	c := &ContractConfig{MinBetWei: big.NewInt(5)}
	dup := c.Copy()
	dup.MinBetWei.SetInt64(9)
	assert.Equal(t, int64(5), c.MinBetWei.Int64())
}
