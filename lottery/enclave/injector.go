package enclave

import (
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/kevinms/leakybucket-go"
	"github.com/pkg/errors"
)

// Injection failure modes. The gateway maps these onto HTTP status codes.
var (
	ErrAlreadyInstalled = errors.New("operator key already set")
	ErrRateLimited      = errors.New("too many key injection attempts")
	ErrBadBase64        = errors.New("payload is not valid base64")
	ErrDecryptFailed    = errors.New("could not decrypt operator key")
	ErrBadKeyFormat     = errors.New("decrypted key is not 0x-prefixed 64-char hex")
)

// MismatchError reports a decrypted key whose address is not the configured
// operator. The caller may retry with the right key.
type MismatchError struct {
	Expected string
	Derived  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("derived address %s does not match expected operator %s", e.Derived, e.Expected)
}

// Injection attempts refill at one per 10s with a burst of 5 per caller.
const (
	injectionRate     = 0.1
	injectionCapacity = 5
)

var keyHexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// KeyInstaller is the chain client surface the injector needs.
type KeyInstaller interface {
	InstallOperatorKey(key *ecdsa.PrivateKey) error
	OperatorInstalled() bool
	OperatorAddress() *common.Address
}

// Injector performs the one-shot ECIES operator key injection.
type Injector struct {
	vault    *Vault
	chain    KeyInstaller
	expected string
	limiter  *leakybucket.Collector
}

// NewInjector wires the vault, the chain client and the expected operator
// address from configuration.
func NewInjector(vault *Vault, chain KeyInstaller, expectedOperator string) *Injector {
	return &Injector{
		vault:    vault,
		chain:    chain,
		expected: expectedOperator,
		limiter:  leakybucket.NewCollector(injectionRate, injectionCapacity, true),
	}
}

// Installed reports whether the one-shot has already fired.
func (inj *Injector) Installed() bool {
	return inj.chain.OperatorInstalled()
}

// OperatorAddress returns the installed address as lowercased hex, empty
// before installation.
func (inj *Injector) OperatorAddress() string {
	addr := inj.chain.OperatorAddress()
	if addr == nil {
		return ""
	}
	return strings.ToLower(addr.Hex())
}

// Install decodes, decrypts and validates an encrypted operator key and
// installs it into the chain client. callerKey buckets rate limiting,
// typically the client IP. The flow is one-shot: after the first success
// every further attempt fails with ErrAlreadyInstalled for the process
// lifetime.
func (inj *Injector) Install(encryptedB64, callerKey string) (common.Address, error) {
	if inj.chain.OperatorInstalled() {
		return common.Address{}, ErrAlreadyInstalled
	}
	if inj.limiter.Add(callerKey, 1) == 0 {
		keyInjectionRejected.WithLabelValues("rate_limited").Inc()
		return common.Address{}, ErrRateLimited
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		keyInjectionRejected.WithLabelValues("base64").Inc()
		return common.Address{}, ErrBadBase64
	}
	plaintext, err := inj.vault.Decrypt(ciphertext)
	if err != nil {
		keyInjectionRejected.WithLabelValues("decrypt").Inc()
		log.WithError(err).Warn("Operator key decryption failed")
		return common.Address{}, ErrDecryptFailed
	}
	keyHex := strings.TrimSpace(string(plaintext))
	if !keyHexPattern.MatchString(keyHex) {
		keyInjectionRejected.WithLabelValues("format").Inc()
		return common.Address{}, ErrBadKeyFormat
	}
	priv, err := gethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		keyInjectionRejected.WithLabelValues("format").Inc()
		return common.Address{}, ErrBadKeyFormat
	}

	derived := gethcrypto.PubkeyToAddress(priv.PublicKey)
	if !strings.EqualFold(derived.Hex(), inj.expected) {
		keyInjectionRejected.WithLabelValues("mismatch").Inc()
		return common.Address{}, &MismatchError{
			Expected: strings.ToLower(inj.expected),
			Derived:  strings.ToLower(derived.Hex()),
		}
	}

	if err := inj.chain.InstallOperatorKey(priv); err != nil {
		// A concurrent attempt won the race.
		return common.Address{}, ErrAlreadyInstalled
	}
	log.WithField("operator", strings.ToLower(derived.Hex())).Info("Operator key installed")
	return derived, nil
}
