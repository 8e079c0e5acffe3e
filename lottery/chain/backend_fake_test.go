package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// fakeBackend is an in-memory Backend standing in for the node.
type fakeBackend struct {
	mu sync.Mutex

	chainID     *big.Int
	latestBlock uint64
	logs        []gethTypes.Log
	headerTimes map[uint64]uint64
	receipts    map[common.Hash]*gethTypes.Receipt

	suggestedGasPrice *big.Int
	estimatedGas      uint64
	estimateErr       error
	sendErr           error
	sentTxs           []*gethTypes.Transaction

	filterQueries []ethereum.FilterQuery
	headerFetches int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:           big.NewInt(31337),
		headerTimes:       make(map[uint64]uint64),
		receipts:          make(map[common.Hash]*gethTypes.Receipt),
		suggestedGasPrice: big.NewInt(1000000000),
		estimatedGas:      100000,
	}
}

func (f *fakeBackend) ChainID(_ context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestBlock, nil
}

func (f *fakeBackend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return nil, errors.New("fake backend has no contract state")
}

func (f *fakeBackend) PendingCodeAt(_ context.Context, _ common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return f.suggestedGasPrice, nil
}

func (f *fakeBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimatedGas, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *gethTypes.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTxs = append(f.sentTxs, tx)
	return nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, number *big.Int) (*gethTypes.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headerFetches++
	n := number.Uint64()
	ts, ok := f.headerTimes[n]
	if !ok {
		return nil, errors.Errorf("unknown block %d", n)
	}
	return &gethTypes.Header{Number: number, Time: ts}, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]gethTypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterQueries = append(f.filterQueries, q)
	var out []gethTypes.Log
	for _, lg := range f.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

// slowViewBackend serves getParticipants/getBetAmount from canned state,
// answering each call after a fixed latency and honoring the call context.
type slowViewBackend struct {
	*fakeBackend
	abi     abi.ABI
	latency time.Duration
	players []common.Address
	amounts map[common.Address]*big.Int
}

func (b *slowViewBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.latency):
	}
	method, err := b.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getParticipants":
		return method.Outputs.Pack(b.players)
	case "getBetAmount":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		player := args[0].(common.Address)
		amount := b.amounts[player]
		if amount == nil {
			amount = big.NewInt(0)
		}
		return method.Outputs.Pack(amount)
	}
	return nil, errors.Errorf("unexpected view call %s", method.Name)
}

func (f *fakeBackend) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, _ chan<- gethTypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions unsupported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*gethTypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
