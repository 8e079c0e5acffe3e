package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func TestDrawRound_RequiresOperatorKey(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	_, err := c.DrawRound(context.Background(), 12)
	if !errors.Is(err, ErrNoOperatorKey) {
		t.Fatalf("want ErrNoOperatorKey, got %v", err)
	}
}

func TestInstallOperatorKey_OneShot(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, c.InstallOperatorKey(key))
	require.Equal(t, true, c.OperatorInstalled())
	addr := c.OperatorAddress()
	require.NotNil(t, addr)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), *addr)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	err = c.InstallOperatorKey(other)
	if !errors.Is(err, ErrKeyInstalled) {
		t.Fatalf("want ErrKeyInstalled, got %v", err)
	}
	// The original key remains in place.
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), *c.OperatorAddress())
}

func TestDrawRound_SubmitsSignedTransaction(t *testing.T) {
	backend := newFakeBackend()
	backend.estimatedGas = 100000
	c, err := NewClient(context.Background(),
		WithBackend(backend),
		WithContractAddress(testContractAddr),
		WithChainID(31337),
		WithGasPriceGwei(2),
		WithGasMultiplier(1.15),
	)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, c.InstallOperatorKey(key))

	hash, err := c.DrawRound(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, 1, len(backend.sentTxs))
	tx := backend.sentTxs[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, testContractAddr, *tx.To())

	// Gas limit carries the 1.15 multiplier, gas price the 2 gwei override.
	assert.Equal(t, uint64(115000), tx.Gas())
	assert.Equal(t, "2000000000", tx.GasPrice().String())

	// Calldata selects drawWinner(12).
	method, err := c.binding.ABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "drawWinner", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(12), args[0].(*big.Int).Int64())
}

func TestRefundRound_ClassifiesRevert(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errors.New("execution reverted: round not refundable")
	c := newTestClient(t, backend)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, c.InstallOperatorKey(key))

	_, err = c.RefundRound(context.Background(), 13)
	var txErr *TxError
	require.Equal(t, true, errors.As(err, &txErr))
	assert.Equal(t, TxRevert, txErr.Kind)
}

func TestWaitForTransaction_Mined(t *testing.T) {
	backend := newFakeBackend()
	hash := common.Hash{0xaa}
	backend.receipts[hash] = &gethTypes.Receipt{
		Status:      1,
		BlockNumber: big.NewInt(77),
		GasUsed:     21000,
	}
	c := newTestClient(t, backend)

	receipt, err := c.WaitForTransaction(context.Background(), hash, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Status)
	assert.Equal(t, uint64(77), receipt.BlockNumber)
	assert.Equal(t, uint64(21000), receipt.GasUsed)
}

func TestWaitForTransaction_Timeout(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	_, err := c.WaitForTransaction(context.Background(), common.Hash{0xbb}, 50*time.Millisecond)
	var txErr *TxError
	require.Equal(t, true, errors.As(err, &txErr))
	assert.Equal(t, TxTimeout, txErr.Kind)
}

func TestClassifyTxError(t *testing.T) {
	cases := []struct {
		msg  string
		kind TxErrorKind
	}{
		{"execution reverted: too early", TxRevert},
		{"replacement transaction underpriced", TxUnderpriced},
		{"transaction underpriced", TxUnderpriced},
		{"nonce too low", TxNonceGap},
		{"nonce too high", TxNonceGap},
		{"connection refused", TxOther},
	}
	for _, tc := range cases {
		err := classifyTxError(errors.New(tc.msg))
		assert.Equal(t, tc.kind, err.Kind, "message %q", tc.msg)
	}
	assert.Equal(t, TxTimeout, classifyTxError(errors.Wrap(context.DeadlineExceeded, "wait")).Kind)
}
