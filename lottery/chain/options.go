package chain

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Option configures the Client at construction time.
type Option func(c *Client) error

// WithEndpoint sets the JSON-RPC endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) error {
		c.cfg.endpoint = endpoint
		return nil
	}
}

// WithContractAddress sets the deployed lottery contract address.
func WithContractAddress(addr common.Address) Option {
	return func(c *Client) error {
		c.cfg.contractAddr = addr
		return nil
	}
}

// WithChainID sets the chain id used for transaction signing.
func WithChainID(id int64) Option {
	return func(c *Client) error {
		c.cfg.chainID = id
		return nil
	}
}

// WithGasPriceGwei overrides the node's suggested gas price. Zero keeps the
// suggestion.
func WithGasPriceGwei(gwei uint64) Option {
	return func(c *Client) error {
		c.cfg.gasPriceGwei = gwei
		return nil
	}
}

// WithGasMultiplier scales the estimated gas limit.
func WithGasMultiplier(m float64) Option {
	return func(c *Client) error {
		if m < 1 {
			return errors.Wrapf(ErrConfig, "gas multiplier %f below 1", m)
		}
		c.cfg.gasMultiplier = m
		return nil
	}
}

// WithViewTimeout bounds every view call.
func WithViewTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.cfg.viewTimeout = d
		return nil
	}
}

// WithABIPath loads the contract ABI from a file instead of the embedded
// copy. Older deployments ship an ABI that returns getConfig and getRound
// as a single tuple; the client decodes both shapes.
func WithABIPath(path string) Option {
	return func(c *Client) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(ErrConfig, "unable to read ABI file %s: %v", path, err)
		}
		c.cfg.abiJSON = string(b)
		return nil
	}
}

// WithBackend injects a pre-built backend, used by tests to avoid dialing.
func WithBackend(backend Backend) Option {
	return func(c *Client) error {
		c.eth = backend
		return nil
	}
}
