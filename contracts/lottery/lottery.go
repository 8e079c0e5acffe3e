// Package lottery wraps the on-chain lottery contract behind a typed Go
// binding. The embedded ABI matches the deployed contract; an alternate ABI
// file can be supplied at runtime for contract versions that return the
// getConfig/getRound results as a single tuple instead of positional
// outputs.
package lottery

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// Contract event names. These are the only events the backend decodes.
const (
	EventRoundCreated           = "RoundCreated"
	EventRoundStateChanged      = "RoundStateChanged"
	EventBetPlaced              = "BetPlaced"
	EventEndTimeExtended        = "EndTimeExtended"
	EventRoundCompleted         = "RoundCompleted"
	EventRoundRefunded          = "RoundRefunded"
	EventMinBetAmountUpdated    = "MinBetAmountUpdated"
	EventBettingDurationUpdated = "BettingDurationUpdated"
	EventMinParticipantsUpdated = "MinParticipantsUpdated"
)

// WatchedEvents lists every event name the backend subscribes to.
var WatchedEvents = []string{
	EventRoundCreated,
	EventRoundStateChanged,
	EventBetPlaced,
	EventEndTimeExtended,
	EventRoundCompleted,
	EventRoundRefunded,
	EventMinBetAmountUpdated,
	EventBettingDurationUpdated,
	EventMinParticipantsUpdated,
}

// LotteryABI is the input ABI of the deployed lottery contract.
const LotteryABI = `[
  {"type":"function","name":"getConfig","stateMutability":"view","inputs":[],"outputs":[
    {"name":"publisher","type":"address"},
    {"name":"sparsity","type":"address"},
    {"name":"operator","type":"address"},
    {"name":"publisherCommission","type":"uint256"},
    {"name":"sparsityCommission","type":"uint256"},
    {"name":"minBetAmount","type":"uint256"},
    {"name":"bettingDuration","type":"uint256"},
    {"name":"minDrawDelay","type":"uint256"},
    {"name":"maxDrawDelay","type":"uint256"},
    {"name":"minEndTimeExtension","type":"uint256"},
    {"name":"minParticipants","type":"uint256"}]},
  {"type":"function","name":"getRound","stateMutability":"view","inputs":[],"outputs":[
    {"name":"roundId","type":"uint256"},
    {"name":"startTime","type":"uint256"},
    {"name":"endTime","type":"uint256"},
    {"name":"minDrawTime","type":"uint256"},
    {"name":"maxDrawTime","type":"uint256"},
    {"name":"totalPot","type":"uint256"},
    {"name":"participantCount","type":"uint256"},
    {"name":"winner","type":"address"},
    {"name":"publisherCommission","type":"uint256"},
    {"name":"sparsityCommission","type":"uint256"},
    {"name":"winnerPrize","type":"uint256"},
    {"name":"state","type":"uint8"}]},
  {"type":"function","name":"getParticipants","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"address[]"}]},
  {"type":"function","name":"getBetAmount","stateMutability":"view","inputs":[
    {"name":"player","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"drawWinner","stateMutability":"nonpayable","inputs":[
    {"name":"roundId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"refundRound","stateMutability":"nonpayable","inputs":[
    {"name":"roundId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"RoundCreated","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"startTime","type":"uint256","indexed":false},
    {"name":"endTime","type":"uint256","indexed":false},
    {"name":"minDrawTime","type":"uint256","indexed":false},
    {"name":"maxDrawTime","type":"uint256","indexed":false}]},
  {"type":"event","name":"RoundStateChanged","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"oldState","type":"uint8","indexed":false},
    {"name":"newState","type":"uint8","indexed":false}]},
  {"type":"event","name":"BetPlaced","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"player","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"totalAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"EndTimeExtended","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"oldEndTime","type":"uint256","indexed":false},
    {"name":"newEndTime","type":"uint256","indexed":false}]},
  {"type":"event","name":"RoundCompleted","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"totalPot","type":"uint256","indexed":false},
    {"name":"winnerPrize","type":"uint256","indexed":false},
    {"name":"participantCount","type":"uint256","indexed":false}]},
  {"type":"event","name":"RoundRefunded","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"reason","type":"string","indexed":false},
    {"name":"totalRefunded","type":"uint256","indexed":false},
    {"name":"participantCount","type":"uint256","indexed":false}]},
  {"type":"event","name":"MinBetAmountUpdated","anonymous":false,"inputs":[
    {"name":"oldValue","type":"uint256","indexed":false},
    {"name":"newValue","type":"uint256","indexed":false}]},
  {"type":"event","name":"BettingDurationUpdated","anonymous":false,"inputs":[
    {"name":"oldValue","type":"uint256","indexed":false},
    {"name":"newValue","type":"uint256","indexed":false}]},
  {"type":"event","name":"MinParticipantsUpdated","anonymous":false,"inputs":[
    {"name":"oldValue","type":"uint256","indexed":false},
    {"name":"newValue","type":"uint256","indexed":false}]}
]`

// ParseABI parses an ABI JSON document for the lottery contract.
func ParseABI(abiJSON string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "unable to parse lottery contract abi")
	}
	return parsed, nil
}

// Lottery is a typed binding to the lottery contract.
type Lottery struct {
	ABI      abi.ABI
	contract *bind.BoundContract
}

// NewLottery binds the contract at the given address. abiJSON overrides the
// embedded ABI when non-empty.
func NewLottery(address common.Address, abiJSON string, backend bind.ContractBackend) (*Lottery, error) {
	if abiJSON == "" {
		abiJSON = LotteryABI
	}
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return nil, err
	}
	return &Lottery{
		ABI:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Call invokes a view method and collects the raw outputs. Callers that
// need shape-tolerant decoding (getConfig, getRound) go through here.
func (l *Lottery) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	return l.contract.Call(opts, results, method, params...)
}

// GetParticipants returns every address holding a bet in the current round.
func (l *Lottery) GetParticipants(opts *bind.CallOpts) ([]common.Address, error) {
	var out []interface{}
	if err := l.contract.Call(opts, &out, "getParticipants"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// GetBetAmount returns the aggregated bet of a player in the current round.
func (l *Lottery) GetBetAmount(opts *bind.CallOpts, player common.Address) (*big.Int, error) {
	var out []interface{}
	if err := l.contract.Call(opts, &out, "getBetAmount", player); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// DrawWinner submits the drawWinner transaction.
func (l *Lottery) DrawWinner(opts *bind.TransactOpts, roundID *big.Int) (*types.Transaction, error) {
	return l.contract.Transact(opts, "drawWinner", roundID)
}

// RefundRound submits the refundRound transaction.
func (l *Lottery) RefundRound(opts *bind.TransactOpts, roundID *big.Int) (*types.Transaction, error) {
	return l.contract.Transact(opts, "refundRound", roundID)
}

// EventIDs maps topic0 hashes to event names for the watched events.
func (l *Lottery) EventIDs() map[common.Hash]string {
	ids := make(map[common.Hash]string, len(WatchedEvents))
	for _, name := range WatchedEvents {
		if ev, ok := l.ABI.Events[name]; ok {
			ids[ev.ID] = name
		}
	}
	return ids
}

// UnpackLog decodes a raw log into the named args map, including indexed
// topics. The caller is expected to have matched topic0 already.
func (l *Lottery) UnpackLog(name string, lg types.Log) (map[string]interface{}, error) {
	ev, ok := l.ABI.Events[name]
	if !ok {
		return nil, errors.Errorf("unknown event %s", name)
	}
	args := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := l.ABI.UnpackIntoMap(args, name, lg.Data); err != nil {
			return nil, errors.Wrapf(err, "unable to unpack %s data", name)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return nil, errors.Wrapf(err, "unable to parse %s topics", name)
		}
	}
	return args, nil
}
