package chain

import (
	"bytes"
	"context"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

// GetEvents fetches and decodes all whitelisted contract events from
// fromBlock to the node's head. Results are sorted by (block number, tx
// hash, log index). Undecodable logs are logged and skipped. The last seen
// block advances monotonically and never rewinds.
func (c *Client) GetEvents(ctx context.Context, fromBlock uint64) ([]types.Event, error) {
	ctx, span := trace.StartSpan(ctx, "chain.GetEvents")
	defer span.End()
	ctx, cancel := c.viewContext(ctx)
	defer cancel()

	latest, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest block query failed")
	}

	topics := make([]common.Hash, 0, len(c.eventID))
	for id := range c.eventID {
		topics = append(topics, id)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{c.cfg.contractAddr},
		Topics:    [][]common.Hash{topics},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "log filter query failed")
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if cmp := bytes.Compare(logs[i].TxHash[:], logs[j].TxHash[:]); cmp != 0 {
			return cmp < 0
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]types.Event, 0, len(logs))
	for _, lg := range logs {
		evt, err := c.decodeLog(ctx, lg)
		if err != nil {
			undecodableLogs.Inc()
			log.WithError(err).WithFields(map[string]interface{}{
				"block": lg.BlockNumber,
				"tx":    lg.TxHash.Hex(),
			}).Warn("Skipping undecodable log")
			continue
		}
		events = append(events, *evt)
	}
	eventLogsFetched.Add(float64(len(events)))

	c.advanceLastSeen(latest)
	return events, nil
}

// LastSeenBlock returns the highest block already covered by GetEvents.
func (c *Client) LastSeenBlock() uint64 {
	c.lastSeenMu.Lock()
	defer c.lastSeenMu.Unlock()
	return c.lastSeenBlock
}

func (c *Client) advanceLastSeen(block uint64) {
	c.lastSeenMu.Lock()
	defer c.lastSeenMu.Unlock()
	if block > c.lastSeenBlock {
		c.lastSeenBlock = block
	}
}

func (c *Client) decodeLog(ctx context.Context, lg gethTypes.Log) (*types.Event, error) {
	if len(lg.Topics) == 0 {
		return nil, errors.New("log without topics")
	}
	name, ok := c.eventID[lg.Topics[0]]
	if !ok {
		return nil, errors.Errorf("unknown event signature %s", lg.Topics[0].Hex())
	}
	raw, err := c.binding.UnpackLog(name, lg)
	if err != nil {
		return nil, err
	}
	ts, err := c.blockTimestamp(ctx, lg.BlockNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "timestamp for block %d", lg.BlockNumber)
	}
	return &types.Event{
		Name:        name,
		Args:        normalizeArgs(raw),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Timestamp:   ts,
	}, nil
}

// blockTimestamp resolves a block's timestamp via a TTL'd per-block header
// cache so a batch of logs in one block costs one header fetch.
func (c *Client) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	key := strconv.FormatUint(blockNumber, 10)
	if cached, ok := c.headerCache.Get(key); ok {
		return cached.(uint64), nil
	}
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, err
	}
	c.headerCache.Set(key, header.Time, gocache.DefaultExpiration)
	return header.Time, nil
}

// normalizeArgs lowercases addresses into plain strings so downstream
// consumers never deal with common.Address values.
func normalizeArgs(raw map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if addr, ok := v.(common.Address); ok {
			args[k] = strings.ToLower(addr.Hex())
			continue
		}
		args[k] = v
	}
	return args
}
