// Package types declares the domain model mirrored from the lottery
// contract. The store owns every instance of these types; other components
// receive copies.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RoundState enumerates the contract's round state machine. The integer
// codes are a wire contract with the chain and must not be reordered.
type RoundState uint8

const (
	// Waiting means no round is accepting bets yet.
	Waiting RoundState = iota
	// Betting means the round accepts bets.
	Betting
	// Drawing means a winner draw is in flight.
	Drawing
	// Completed means a winner has been paid.
	Completed
	// Refunded means all bets were returned.
	Refunded
)

// String returns the upper-case state name used in feed messages.
func (s RoundState) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Betting:
		return "BETTING"
	case Drawing:
		return "DRAWING"
	case Completed:
		return "COMPLETED"
	case Refunded:
		return "REFUNDED"
	default:
		return "UNKNOWN"
	}
}

// Label returns the lower-case state name used on the wire.
func (s RoundState) Label() string {
	switch s {
	case Waiting:
		return "waiting"
	case Betting:
		return "betting"
	case Drawing:
		return "drawing"
	case Completed:
		return "completed"
	case Refunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// ContractConfig is the authoritative snapshot of contract parameters.
// Commissions are in basis points, amounts in wei, durations in seconds.
type ContractConfig struct {
	Publisher           common.Address
	Sparsity            common.Address
	Operator            common.Address
	PublisherCommission uint64
	SparsityCommission  uint64
	MinBetWei           *big.Int
	BettingDuration     uint64
	MinDrawDelay        uint64
	MaxDrawDelay        uint64
	MinEndTimeExtension uint64
	MinParticipants     uint64
}

// Copy returns a deep copy.
func (c *ContractConfig) Copy() *ContractConfig {
	if c == nil {
		return nil
	}
	dup := *c
	dup.MinBetWei = cloneBig(c.MinBetWei)
	return &dup
}

// LotteryRound is the snapshot of the single active round. A nil
// *LotteryRound means no round is active; RoundID is never zero inside a
// non-nil round.
type LotteryRound struct {
	RoundID             uint64
	StartTime           uint64
	EndTime             uint64
	MinDrawTime         uint64
	MaxDrawTime         uint64
	TotalPot            *big.Int
	ParticipantCount    uint64
	Winner              *common.Address // nil until the round completes
	PublisherCommission *big.Int
	SparsityCommission  *big.Int
	WinnerPrize         *big.Int
	State               RoundState
}

// Copy returns a deep copy.
func (r *LotteryRound) Copy() *LotteryRound {
	if r == nil {
		return nil
	}
	dup := *r
	dup.TotalPot = cloneBig(r.TotalPot)
	dup.PublisherCommission = cloneBig(r.PublisherCommission)
	dup.SparsityCommission = cloneBig(r.SparsityCommission)
	dup.WinnerPrize = cloneBig(r.WinnerPrize)
	if r.Winner != nil {
		w := *r.Winner
		dup.Winner = &w
	}
	return &dup
}

// ParticipantSummary aggregates a player's bets within the current round.
type ParticipantSummary struct {
	Address     common.Address
	TotalAmount *big.Int
}

// RoundSnapshot is the immutable history record written once per terminal
// round transition.
type RoundSnapshot struct {
	EventType        string
	RoundID          uint64
	ParticipantCount uint64
	TotalPot         *big.Int
	FinishedAt       uint64
	Winner           *common.Address
	WinnerPrize      *big.Int
	RefundReason     string
}

// Copy returns a deep copy.
func (s RoundSnapshot) Copy() RoundSnapshot {
	dup := s
	dup.TotalPot = cloneBig(s.TotalPot)
	dup.WinnerPrize = cloneBig(s.WinnerPrize)
	if s.Winner != nil {
		w := *s.Winner
		dup.Winner = &w
	}
	return dup
}

// LiveFeedItem is a human-readable activity entry derived from an on-chain
// event. Identity is (RoundID, EventTime, EventType).
type LiveFeedItem struct {
	EventType string
	Message   string
	Details   map[string]interface{}
	EventTime uint64
	RoundID   uint64
}

// Copy returns a copy with its own Details map. Detail values are shared;
// they are written once and never mutated.
func (i LiveFeedItem) Copy() LiveFeedItem {
	dup := i
	if i.Details != nil {
		dup.Details = make(map[string]interface{}, len(i.Details))
		for k, v := range i.Details {
			dup.Details[k] = v
		}
	}
	return dup
}

// Event is the decoded envelope of a contract log. Args hold *big.Int for
// integer fields, lowercased hex strings for addresses and plain strings
// for text fields.
type Event struct {
	Name        string
	Args        map[string]interface{}
	BlockNumber uint64
	TxHash      common.Hash
	Timestamp   uint64
}

// TxReceipt is the subset of a transaction receipt the operator cares about.
type TxReceipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// ChainHealth is the never-failing health probe result.
type ChainHealth struct {
	Status      string `json:"status"`
	LatestBlock uint64 `json:"latest_block,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// OperatorStatus reflects the passive operator for status surfaces.
type OperatorStatus struct {
	Status         string `json:"status"`
	CurrentRoundID uint64 `json:"current_round_id,omitempty"`
}

// AttestationDocument is returned by /api/attestation. A verifier
// distinguishes hardware-backed documents from the dummy fallback by the
// Verified flag and a non-empty Certificate.
type AttestationDocument struct {
	Verified    bool     `json:"verified"`
	ModuleID    string   `json:"module_id,omitempty"`
	Document    string   `json:"document,omitempty"` // base64 raw COSE document
	Certificate string   `json:"certificate"`        // base64 DER, empty when unverified
	CABundle    []string `json:"cabundle"`
	PCRs        []string `json:"pcrs"`       // hex, registers 0..7
	PublicKey   string   `json:"public_key"` // base64 DER SECP384R1 public key
	UserData    string   `json:"user_data"`  // base64 JSON
	Timestamp   uint64   `json:"timestamp"`
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
