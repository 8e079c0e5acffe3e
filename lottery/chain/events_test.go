package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func betPlacedLog(t *testing.T, c *Client, block uint64, txHash byte, index uint, player common.Address, amount *big.Int) gethTypes.Log {
	t.Helper()
	ev := c.binding.ABI.Events[contract.EventBetPlaced]
	data, err := ev.Inputs.NonIndexed().Pack(amount, amount)
	require.NoError(t, err)
	return gethTypes.Log{
		Address:     testContractAddr,
		BlockNumber: block,
		TxHash:      common.Hash{txHash},
		Index:       index,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(player.Bytes()),
		},
		Data: data,
	}
}

func TestGetEvents_DecodesAndSorts(t *testing.T) {
	backend := newFakeBackend()
	backend.latestBlock = 120
	backend.headerTimes[100] = 1700000100
	backend.headerTimes[101] = 1700000200
	c := newTestClient(t, backend)

	player := common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc")
	// Deliberately out of order: later block first, two logs in one tx.
	backend.logs = []gethTypes.Log{
		betPlacedLog(t, c, 101, 0x02, 0, player, big.NewInt(3)),
		betPlacedLog(t, c, 100, 0x01, 1, player, big.NewInt(2)),
		betPlacedLog(t, c, 100, 0x01, 0, player, big.NewInt(1)),
	}

	events, err := c.GetEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 3, len(events))
	assert.Equal(t, int64(1), events[0].Args["amount"].(*big.Int).Int64())
	assert.Equal(t, int64(2), events[1].Args["amount"].(*big.Int).Int64())
	assert.Equal(t, int64(3), events[2].Args["amount"].(*big.Int).Int64())

	// Addresses are normalised to lowercased hex strings.
	assert.Equal(t, "0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc", events[0].Args["player"])
	assert.Equal(t, uint64(1700000100), events[0].Timestamp)
	assert.Equal(t, uint64(1700000200), events[2].Timestamp)

	// Two logs in block 100 cost a single header fetch.
	assert.Equal(t, 2, backend.headerFetches)

	assert.Equal(t, uint64(120), c.LastSeenBlock())
}

func TestGetEvents_SkipsUndecodableLogs(t *testing.T) {
	backend := newFakeBackend()
	backend.latestBlock = 10
	backend.headerTimes[5] = 1700000000
	c := newTestClient(t, backend)

	player := common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc")
	good := betPlacedLog(t, c, 5, 0x01, 0, player, big.NewInt(1))
	bad := good
	bad.Data = []byte{0xde, 0xad} // truncated payload
	bad.Index = 1
	backend.logs = []gethTypes.Log{good, bad}

	events, err := c.GetEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, len(events))
}

func TestLastSeenBlock_NeverRewinds(t *testing.T) {
	backend := newFakeBackend()
	backend.latestBlock = 50
	c := newTestClient(t, backend)

	_, err := c.GetEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(50), c.LastSeenBlock())

	// A lagging node reports an older head; the cursor must not move back.
	backend.latestBlock = 40
	_, err = c.GetEvents(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), c.LastSeenBlock())
}
