// Package chain encapsulates every interaction with the EVM node: view
// calls, log retrieval, transaction signing and broadcast. No other
// component talks to the RPC endpoint directly.
package chain

import (
	"context"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

var log = logrus.WithField("prefix", "chain")

const (
	defaultViewTimeout   = 10 * time.Second
	defaultGasMultiplier = 1.15
	headerCacheTTL       = 10 * time.Minute
)

// Backend is the subset of ethclient.Client the chain client consumes.
// Narrowing it lets tests substitute an in-memory fake.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethTypes.Receipt, error)
}

type clientConfig struct {
	endpoint      string
	contractAddr  common.Address
	chainID       int64
	gasPriceGwei  uint64
	gasMultiplier float64
	viewTimeout   time.Duration
	abiJSON       string
}

// Client is the typed wrapper over the node. All methods are safe for
// concurrent use; blocking calls honor their context.
type Client struct {
	cfg     *clientConfig
	eth     Backend
	binding *contract.Lottery
	eventID map[common.Hash]string

	headerCache *gocache.Cache

	lastSeenMu    sync.Mutex
	lastSeenBlock uint64

	operatorKey *keySlot
}

// NewClient dials the node, probes connectivity and builds the contract
// binding. Connection failures wrap ErrConnection, a missing address or an
// unparsable ABI wraps ErrConfig; both are fatal at startup.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		cfg: &clientConfig{
			gasMultiplier: defaultGasMultiplier,
			viewTimeout:   defaultViewTimeout,
		},
		headerCache: gocache.New(headerCacheTTL, headerCacheTTL),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if (c.cfg.contractAddr == common.Address{}) {
		return nil, errors.Wrap(ErrConfig, "contract address missing")
	}
	if c.eth == nil {
		if c.cfg.endpoint == "" {
			return nil, errors.Wrap(ErrConfig, "rpc endpoint missing")
		}
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.viewTimeout)
		defer cancel()
		ec, err := ethclient.DialContext(dialCtx, c.cfg.endpoint)
		if err != nil {
			return nil, errors.Wrapf(ErrConnection, "dial %s: %v", c.cfg.endpoint, err)
		}
		c.eth = ec
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.viewTimeout)
	defer cancel()
	chainID, err := c.eth.ChainID(probeCtx)
	if err != nil {
		return nil, errors.Wrapf(ErrConnection, "chain id probe: %v", err)
	}
	if c.cfg.chainID == 0 {
		c.cfg.chainID = chainID.Int64()
	} else if chainID.Int64() != c.cfg.chainID {
		log.WithFields(logrus.Fields{
			"configured": c.cfg.chainID,
			"node":       chainID.Int64(),
		}).Warn("Configured chain id does not match the node")
	}

	binding, err := contract.NewLottery(c.cfg.contractAddr, c.cfg.abiJSON, c.eth)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "%v", err)
	}
	c.binding = binding
	c.eventID = binding.EventIDs()
	c.operatorKey = newKeySlot()

	log.WithFields(logrus.Fields{
		"endpoint": c.cfg.endpoint,
		"contract": c.cfg.contractAddr.Hex(),
		"chainId":  c.cfg.chainID,
	}).Info("Connected to lottery contract")
	return c, nil
}

// ContractAddress returns the bound contract address.
func (c *Client) ContractAddress() common.Address {
	return c.cfg.contractAddr
}

// GetContractConfig performs the getConfig view call. The result may be a
// named struct or a positional tuple depending on the deployed ABI; both
// decode through the same fixed field order.
func (c *Client) GetContractConfig(ctx context.Context) (*types.ContractConfig, error) {
	ctx, span := trace.StartSpan(ctx, "chain.GetContractConfig")
	defer span.End()
	ctx, cancel := c.viewContext(ctx)
	defer cancel()

	var out []interface{}
	if err := c.binding.Call(&bind.CallOpts{Context: ctx}, &out, "getConfig"); err != nil {
		viewCallErrors.WithLabelValues("getConfig").Inc()
		return nil, errors.Wrap(err, "getConfig call failed")
	}
	return decodeContractConfig(out)
}

// GetCurrentRound performs the getRound view call. A zero round id means no
// round is active and returns (nil, nil). A zero winner address is
// normalised to nil.
func (c *Client) GetCurrentRound(ctx context.Context) (*types.LotteryRound, error) {
	ctx, span := trace.StartSpan(ctx, "chain.GetCurrentRound")
	defer span.End()
	ctx, cancel := c.viewContext(ctx)
	defer cancel()

	var out []interface{}
	if err := c.binding.Call(&bind.CallOpts{Context: ctx}, &out, "getRound"); err != nil {
		viewCallErrors.WithLabelValues("getRound").Inc()
		return nil, errors.Wrap(err, "getRound call failed")
	}
	return decodeLotteryRound(out)
}

// GetParticipantSummaries fetches every participant of the round with their
// aggregated bet. Zero-amount entries are skipped. The view timeout applies
// per RPC call, not to the whole sequence, so large participant lists do not
// exhaust one shared deadline.
func (c *Client) GetParticipantSummaries(ctx context.Context, roundID uint64) ([]types.ParticipantSummary, error) {
	ctx, span := trace.StartSpan(ctx, "chain.GetParticipantSummaries")
	defer span.End()

	addrs, err := c.getParticipants(ctx)
	if err != nil {
		viewCallErrors.WithLabelValues("getParticipants").Inc()
		return nil, errors.Wrap(err, "getParticipants call failed")
	}
	summaries := make([]types.ParticipantSummary, 0, len(addrs))
	for _, addr := range addrs {
		amount, err := c.getBetAmount(ctx, addr)
		if err != nil {
			viewCallErrors.WithLabelValues("getBetAmount").Inc()
			return nil, errors.Wrapf(err, "getBetAmount(%s) call failed", addr.Hex())
		}
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		summaries = append(summaries, types.ParticipantSummary{Address: addr, TotalAmount: amount})
	}
	return summaries, nil
}

func (c *Client) getParticipants(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := c.viewContext(ctx)
	defer cancel()
	return c.binding.GetParticipants(&bind.CallOpts{Context: ctx})
}

func (c *Client) getBetAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := c.viewContext(ctx)
	defer cancel()
	return c.binding.GetBetAmount(&bind.CallOpts{Context: ctx}, addr)
}

// HealthCheck reports node reachability without ever returning an error.
func (c *Client) HealthCheck(ctx context.Context) types.ChainHealth {
	ctx, cancel := c.viewContext(ctx)
	defer cancel()
	latest, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return types.ChainHealth{Status: "error", Detail: err.Error()}
	}
	return types.ChainHealth{Status: "ok", LatestBlock: latest}
}

// LatestBlockNumber returns the node's current head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.viewContext(ctx)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

func (c *Client) viewContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.viewTimeout)
}

// decodeContractConfig accepts either eleven positional outputs or a single
// struct output with eleven fields, in the fixed order of the contract.
func decodeContractConfig(out []interface{}) (*types.ContractConfig, error) {
	fields, err := flattenOutputs(out, 11, "getConfig")
	if err != nil {
		return nil, err
	}
	cfg := &types.ContractConfig{}
	if cfg.Publisher, err = toAddress(fields[0]); err != nil {
		return nil, errors.Wrap(err, "publisher")
	}
	if cfg.Sparsity, err = toAddress(fields[1]); err != nil {
		return nil, errors.Wrap(err, "sparsity")
	}
	if cfg.Operator, err = toAddress(fields[2]); err != nil {
		return nil, errors.Wrap(err, "operator")
	}
	if cfg.PublisherCommission, err = toUint64(fields[3]); err != nil {
		return nil, errors.Wrap(err, "publisherCommission")
	}
	if cfg.SparsityCommission, err = toUint64(fields[4]); err != nil {
		return nil, errors.Wrap(err, "sparsityCommission")
	}
	if cfg.MinBetWei, err = toBig(fields[5]); err != nil {
		return nil, errors.Wrap(err, "minBetAmount")
	}
	if cfg.BettingDuration, err = toUint64(fields[6]); err != nil {
		return nil, errors.Wrap(err, "bettingDuration")
	}
	if cfg.MinDrawDelay, err = toUint64(fields[7]); err != nil {
		return nil, errors.Wrap(err, "minDrawDelay")
	}
	if cfg.MaxDrawDelay, err = toUint64(fields[8]); err != nil {
		return nil, errors.Wrap(err, "maxDrawDelay")
	}
	if cfg.MinEndTimeExtension, err = toUint64(fields[9]); err != nil {
		return nil, errors.Wrap(err, "minEndTimeExtension")
	}
	if cfg.MinParticipants, err = toUint64(fields[10]); err != nil {
		return nil, errors.Wrap(err, "minParticipants")
	}
	return cfg, nil
}

// decodeLotteryRound accepts either twelve positional outputs or a single
// struct output with twelve fields, in the fixed order of the contract.
func decodeLotteryRound(out []interface{}) (*types.LotteryRound, error) {
	fields, err := flattenOutputs(out, 12, "getRound")
	if err != nil {
		return nil, err
	}
	roundID, err := toUint64(fields[0])
	if err != nil {
		return nil, errors.Wrap(err, "roundId")
	}
	if roundID == 0 {
		return nil, nil
	}
	r := &types.LotteryRound{RoundID: roundID}
	if r.StartTime, err = toUint64(fields[1]); err != nil {
		return nil, errors.Wrap(err, "startTime")
	}
	if r.EndTime, err = toUint64(fields[2]); err != nil {
		return nil, errors.Wrap(err, "endTime")
	}
	if r.MinDrawTime, err = toUint64(fields[3]); err != nil {
		return nil, errors.Wrap(err, "minDrawTime")
	}
	if r.MaxDrawTime, err = toUint64(fields[4]); err != nil {
		return nil, errors.Wrap(err, "maxDrawTime")
	}
	if r.TotalPot, err = toBig(fields[5]); err != nil {
		return nil, errors.Wrap(err, "totalPot")
	}
	if r.ParticipantCount, err = toUint64(fields[6]); err != nil {
		return nil, errors.Wrap(err, "participantCount")
	}
	winner, err := toAddress(fields[7])
	if err != nil {
		return nil, errors.Wrap(err, "winner")
	}
	if (winner != common.Address{}) {
		r.Winner = &winner
	}
	if r.PublisherCommission, err = toBig(fields[8]); err != nil {
		return nil, errors.Wrap(err, "publisherCommission")
	}
	if r.SparsityCommission, err = toBig(fields[9]); err != nil {
		return nil, errors.Wrap(err, "sparsityCommission")
	}
	if r.WinnerPrize, err = toBig(fields[10]); err != nil {
		return nil, errors.Wrap(err, "winnerPrize")
	}
	state, err := toUint64(fields[11])
	if err != nil {
		return nil, errors.Wrap(err, "state")
	}
	r.State = types.RoundState(state)
	return r, nil
}

// flattenOutputs normalizes the two ABI result shapes into a positional
// field slice. An unexpected arity is rejected: older ten-field configs have
// no safe defaults for the missing parameters.
func flattenOutputs(out []interface{}, want int, method string) ([]interface{}, error) {
	if len(out) == 1 {
		v := reflect.ValueOf(out[0])
		if v.Kind() == reflect.Struct {
			fields := make([]interface{}, v.NumField())
			for i := 0; i < v.NumField(); i++ {
				fields[i] = v.Field(i).Interface()
			}
			out = fields
		}
	}
	if len(out) != want {
		return nil, errors.Errorf("%s returned %d outputs, want %d", method, len(out), want)
	}
	return out, nil
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, errors.Errorf("not an address: %q", a)
		}
		return common.HexToAddress(a), nil
	default:
		return common.Address{}, errors.Errorf("not an address: %T", v)
	}
}

func toBig(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case uint8:
		return big.NewInt(int64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		b, ok := new(big.Int).SetString(strings.TrimPrefix(n, "0x"), 0)
		if !ok {
			return nil, errors.Errorf("not an integer: %q", n)
		}
		return b, nil
	default:
		return nil, errors.Errorf("not an integer: %T", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	b, err := toBig(v)
	if err != nil {
		return 0, err
	}
	if !b.IsUint64() {
		return 0, errors.Errorf("value %s exceeds uint64", b)
	}
	return b.Uint64(), nil
}
