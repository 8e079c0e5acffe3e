package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

const receiptPollInterval = time.Second

// keySlot is the single-writer multiple-reader cell holding the operator
// key. It starts absent and can be written exactly once per process.
type keySlot struct {
	mu   sync.RWMutex
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newKeySlot() *keySlot {
	return &keySlot{}
}

func (s *keySlot) install(key *ecdsa.PrivateKey) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.addr, ErrKeyInstalled
	}
	s.key = key
	s.addr = crypto.PubkeyToAddress(key.PublicKey)
	return s.addr, nil
}

func (s *keySlot) get() (*ecdsa.PrivateKey, common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.addr, s.key != nil
}

// InstallOperatorKey installs the enclave-injected operator key. It
// succeeds at most once per process lifetime; later calls return
// ErrKeyInstalled.
func (c *Client) InstallOperatorKey(key *ecdsa.PrivateKey) error {
	addr, err := c.operatorKey.install(key)
	if err != nil {
		return err
	}
	log.WithField("operator", addr.Hex()).Info("Operator key installed")
	return nil
}

// OperatorInstalled reports whether signing is possible yet.
func (c *Client) OperatorInstalled() bool {
	_, _, ok := c.operatorKey.get()
	return ok
}

// OperatorAddress returns the installed operator address, nil before
// installation.
func (c *Client) OperatorAddress() *common.Address {
	_, addr, ok := c.operatorKey.get()
	if !ok {
		return nil
	}
	a := addr
	return &a
}

// DrawRound submits drawWinner for the round and returns the tx hash.
func (c *Client) DrawRound(ctx context.Context, roundID uint64) (common.Hash, error) {
	return c.transact(ctx, "drawWinner", roundID)
}

// RefundRound submits refundRound for the round and returns the tx hash.
func (c *Client) RefundRound(ctx context.Context, roundID uint64) (common.Hash, error) {
	return c.transact(ctx, "refundRound", roundID)
}

func (c *Client) transact(ctx context.Context, method string, roundID uint64) (common.Hash, error) {
	ctx, span := trace.StartSpan(ctx, "chain.transact")
	defer span.End()

	key, from, ok := c.operatorKey.get()
	if !ok {
		return common.Hash{}, ErrNoOperatorKey
	}

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, classifyTxError(errors.Wrap(err, "gas price query failed"))
	}
	gasLimit, err := c.estimateGas(ctx, from, method, roundID)
	if err != nil {
		return common.Hash{}, classifyTxError(errors.Wrapf(err, "gas estimation for %s failed", method))
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(c.cfg.chainID))
	if err != nil {
		return common.Hash{}, classifyTxError(errors.Wrap(err, "signer construction failed"))
	}
	opts.Context = ctx
	opts.GasPrice = gasPrice
	opts.GasLimit = gasLimit

	id := new(big.Int).SetUint64(roundID)
	var tx interface{ Hash() common.Hash }
	switch method {
	case "drawWinner":
		tx, err = c.binding.DrawWinner(opts, id)
	case "refundRound":
		tx, err = c.binding.RefundRound(opts, id)
	default:
		return common.Hash{}, errors.Errorf("unknown transact method %s", method)
	}
	if err != nil {
		txErrors.WithLabelValues(method).Inc()
		return common.Hash{}, classifyTxError(err)
	}
	txSubmitted.WithLabelValues(method).Inc()
	log.WithFields(map[string]interface{}{
		"method":   method,
		"round":    roundID,
		"tx":       tx.Hash().Hex(),
		"gasLimit": gasLimit,
		"gasPrice": gasPrice.String(),
	}).Info("Transaction submitted")
	return tx.Hash(), nil
}

// gasPrice returns the configured gwei override, or the node suggestion.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if c.cfg.gasPriceGwei > 0 {
		return new(big.Int).Mul(
			new(big.Int).SetUint64(c.cfg.gasPriceGwei),
			big.NewInt(params.GWei),
		), nil
	}
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) estimateGas(ctx context.Context, from common.Address, method string, roundID uint64) (uint64, error) {
	data, err := c.binding.ABI.Pack(method, new(big.Int).SetUint64(roundID))
	if err != nil {
		return 0, err
	}
	estimate, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.cfg.contractAddr,
		Data: data,
	})
	if err != nil {
		return 0, err
	}
	return uint64(float64(estimate) * c.cfg.gasMultiplier), nil
}

// WaitForTransaction blocks until the transaction is mined or the timeout
// expires.
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.TxReceipt, error) {
	ctx, span := trace.StartSpan(ctx, "chain.WaitForTransaction")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return &types.TxReceipt{
				TxHash:      txHash,
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).WithField("tx", txHash.Hex()).Debug("Receipt poll failed, retrying")
		}
		select {
		case <-ctx.Done():
			return nil, classifyTxError(errors.Wrapf(context.DeadlineExceeded, "receipt wait for %s", txHash.Hex()))
		case <-ticker.C:
		}
	}
}
