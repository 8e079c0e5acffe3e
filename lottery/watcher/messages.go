package watcher

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

// FeedMessage renders the human-readable activity line for a decoded event.
// The second return is false for events that never reach the live feed.
// Rendering is deterministic: same event, same string.
func FeedMessage(evt *types.Event) (string, bool) {
	switch evt.Name {
	case contract.EventRoundCreated:
		return fmt.Sprintf("Round %d created", argUint64(evt.Args, "roundId")), true
	case contract.EventBetPlaced:
		return fmt.Sprintf("%s placed a bet for %s ETH",
			shortAddress(argString(evt.Args, "player")),
			formatEther(argBig(evt.Args, "amount"))), true
	case contract.EventRoundStateChanged:
		state := types.RoundState(argUint64(evt.Args, "newState"))
		return fmt.Sprintf("Round %d state transitioned to %s",
			argUint64(evt.Args, "roundId"), state.String()), true
	case contract.EventRoundCompleted:
		return fmt.Sprintf("Round %d completed - winner: %s",
			argUint64(evt.Args, "roundId"),
			shortAddress(argString(evt.Args, "winner"))), true
	case contract.EventRoundRefunded:
		id := argUint64(evt.Args, "roundId")
		if reason := argString(evt.Args, "reason"); reason != "" {
			return fmt.Sprintf("Round %d refunded: %s", id, reason), true
		}
		return fmt.Sprintf("Round %d refunded", id), true
	default:
		return "", false
	}
}

// shortAddress abbreviates a lowercased hex address to 0x + first 6 + ... +
// last 4 characters. Inputs too short to abbreviate pass through unchanged.
func shortAddress(addr string) string {
	if len(addr) < 2+6+4 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}

// formatEther renders a wei amount as ETH with exactly four fractional
// digits, e.g. 10000000000000000 -> "0.0100".
func formatEther(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(1e18))
	return r.FloatString(4)
}

// Event args carry *big.Int for uint256, native uint8 for uint8 and
// lowercased hex strings for addresses; the accessors below absorb the
// difference so message rendering stays total.

func argUint64(args map[string]interface{}, key string) uint64 {
	switch v := args[key].(type) {
	case *big.Int:
		return v.Uint64()
	case uint8:
		return uint64(v)
	case uint64:
		return v
	default:
		return 0
	}
}

func argBig(args map[string]interface{}, key string) *big.Int {
	if v, ok := args[key].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// addressPtr parses a lowercased hex address into a pointer, nil for the
// zero address or anything unparseable.
func addressPtr(addr string) *common.Address {
	if !common.IsHexAddress(addr) {
		return nil
	}
	parsed := common.HexToAddress(addr)
	if parsed == (common.Address{}) {
		return nil
	}
	return &parsed
}
