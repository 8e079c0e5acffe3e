package chain

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrConnection wraps failures to reach the configured node.
	ErrConnection = errors.New("chain: node unreachable")
	// ErrConfig indicates a missing or invalid contract address or ABI.
	ErrConfig = errors.New("chain: invalid contract configuration")
	// ErrNoOperatorKey is returned by signing paths before key injection.
	ErrNoOperatorKey = errors.New("chain: operator key not installed")
	// ErrKeyInstalled is returned by a second key installation attempt.
	ErrKeyInstalled = errors.New("chain: operator key already installed")
)

// TxErrorKind classifies transaction failures for the operator's logs.
type TxErrorKind string

const (
	// TxRevert means the node reported an execution revert.
	TxRevert TxErrorKind = "revert"
	// TxUnderpriced means the gas price was below the node's floor.
	TxUnderpriced TxErrorKind = "underpriced"
	// TxNonceGap means the account nonce was out of sequence.
	TxNonceGap TxErrorKind = "nonce_gap"
	// TxTimeout means the receipt wait deadline expired.
	TxTimeout TxErrorKind = "timeout"
	// TxOther covers everything else.
	TxOther TxErrorKind = "other"
)

// TxError carries the failure kind alongside the underlying error.
type TxError struct {
	Kind TxErrorKind
	Err  error
}

func (e *TxError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// classifyTxError maps node error strings to a TxError. The strings are the
// ones geth and its derivatives surface over JSON-RPC.
func classifyTxError(err error) *TxError {
	kind := TxOther
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = TxTimeout
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "always failing transaction"):
		kind = TxRevert
	case strings.Contains(msg, "underpriced"):
		kind = TxUnderpriced
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "nonce too high"):
		kind = TxNonceGap
	}
	return &TxError{Kind: kind, Err: err}
}
