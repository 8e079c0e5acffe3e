package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

var testContractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func newTestClient(t *testing.T, backend Backend) *Client {
	t.Helper()
	c, err := NewClient(context.Background(),
		WithBackend(backend),
		WithContractAddress(testContractAddr),
		WithChainID(31337),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresContractAddress(t *testing.T) {
	_, err := NewClient(context.Background(), WithBackend(newFakeBackend()))
	assert.ErrorContains(t, "contract address missing", err)
}

func configOutputs() []interface{} {
	return []interface{}{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(500),
		big.NewInt(250),
		big.NewInt(10000000000000000),
		big.NewInt(3600),
		big.NewInt(60),
		big.NewInt(7200),
		big.NewInt(300),
		big.NewInt(2),
	}
}

func TestDecodeContractConfig_Positional(t *testing.T) {
	cfg, err := decodeContractConfig(configOutputs())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cfg.PublisherCommission)
	assert.Equal(t, uint64(250), cfg.SparsityCommission)
	assert.Equal(t, "10000000000000000", cfg.MinBetWei.String())
	assert.Equal(t, uint64(3600), cfg.BettingDuration)
	assert.Equal(t, uint64(2), cfg.MinParticipants)
}

func TestDecodeContractConfig_NamedStruct(t *testing.T) {
	// Newer ABIs return getConfig as one tuple; geth materialises it as an
	// anonymous struct whose fields are in declaration order.
	out := []interface{}{struct {
		Publisher           common.Address
		Sparsity            common.Address
		Operator            common.Address
		PublisherCommission *big.Int
		SparsityCommission  *big.Int
		MinBetAmount        *big.Int
		BettingDuration     *big.Int
		MinDrawDelay        *big.Int
		MaxDrawDelay        *big.Int
		MinEndTimeExtension *big.Int
		MinParticipants     *big.Int
	}{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(500), big.NewInt(250), big.NewInt(10000000000000000),
		big.NewInt(3600), big.NewInt(60), big.NewInt(7200), big.NewInt(300), big.NewInt(2),
	}}
	cfg, err := decodeContractConfig(out)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), cfg.Operator)
	assert.Equal(t, uint64(60), cfg.MinDrawDelay)
}

func TestDecodeContractConfig_RejectsTenTuple(t *testing.T) {
	_, err := decodeContractConfig(configOutputs()[:10])
	assert.ErrorContains(t, "getConfig returned 10 outputs, want 11", err)
}

func roundOutputs(roundID int64, winner common.Address, state uint8) []interface{} {
	return []interface{}{
		big.NewInt(roundID),
		big.NewInt(1000),
		big.NewInt(2000),
		big.NewInt(2100),
		big.NewInt(3000),
		big.NewInt(50000000000000000),
		big.NewInt(3),
		winner,
		big.NewInt(100),
		big.NewInt(50),
		big.NewInt(49850000000000000),
		state,
	}
}

func TestDecodeLotteryRound_Active(t *testing.T) {
	r, err := decodeLotteryRound(roundOutputs(12, common.Address{}, 1))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint64(12), r.RoundID)
	assert.Equal(t, types.Betting, r.State)
	if r.Winner != nil {
		t.Fatal("zero winner address must decode as nil")
	}
	assert.Equal(t, uint64(2100), r.MinDrawTime)
}

func TestDecodeLotteryRound_ZeroRoundMeansNone(t *testing.T) {
	r, err := decodeLotteryRound(roundOutputs(0, common.Address{}, 0))
	require.NoError(t, err)
	if r != nil {
		t.Fatal("round id 0 must decode as no round")
	}
}

func TestDecodeLotteryRound_CompletedWinner(t *testing.T) {
	winner := common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc")
	r, err := decodeLotteryRound(roundOutputs(12, winner, 3))
	require.NoError(t, err)
	require.NotNil(t, r.Winner)
	assert.Equal(t, winner, *r.Winner)
	assert.Equal(t, types.Completed, r.State)
}

func TestGetParticipantSummaries_TimeoutIsPerCall(t *testing.T) {
	parsed, err := contract.ParseABI(contract.LotteryABI)
	require.NoError(t, err)

	// Ten participants at 60ms node latency: the sequence takes ~660ms in
	// total, well past one 300ms view budget, but no single call does.
	players := make([]common.Address, 10)
	amounts := make(map[common.Address]*big.Int, len(players))
	for i := range players {
		players[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
		amounts[players[i]] = big.NewInt(int64(i+1) * 1000)
	}
	backend := &slowViewBackend{
		fakeBackend: newFakeBackend(),
		abi:         parsed,
		latency:     60 * time.Millisecond,
		players:     players,
		amounts:     amounts,
	}

	c, err := NewClient(context.Background(),
		WithBackend(backend),
		WithContractAddress(testContractAddr),
		WithChainID(31337),
		WithViewTimeout(300*time.Millisecond),
	)
	require.NoError(t, err)

	summaries, err := c.GetParticipantSummaries(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, len(players), len(summaries))
	assert.Equal(t, "1000", summaries[0].TotalAmount.String())
}

func TestHealthCheck_NeverFails(t *testing.T) {
	backend := newFakeBackend()
	backend.latestBlock = 1234
	c := newTestClient(t, backend)
	h := c.HealthCheck(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, uint64(1234), h.LatestBlock)
}

func TestToUint64_Overflow(t *testing.T) {
	big65 := new(big.Int).Lsh(big.NewInt(1), 65)
	_, err := toUint64(big65)
	assert.ErrorContains(t, "exceeds uint64", err)
}
