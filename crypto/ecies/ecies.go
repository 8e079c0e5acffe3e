// Package ecies implements the hybrid encryption scheme used to inject the
// operator private key into the enclave. The wire format is fixed:
//
//	ephemeral_pubkey(97, uncompressed P-384) ||
//	nonce(12) ||
//	AES-256-GCM ciphertext(len(plaintext)+16) ||
//	HMAC-SHA256(32)
//
// Two 32-byte keys are derived from the ECDH shared secret with
// HKDF-SHA256 (empty salt): one for AES-GCM, one for the outer HMAC. The
// HMAC covers everything before it and is verified before any decryption
// is attempted.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	pubKeyLen = 97 // 0x04 || X(48) || Y(48)
	nonceLen  = 12
	tagLen    = 16
	hmacLen   = 32

	aesInfo  = "ecies-aes-key"
	hmacInfo = "ecies-hmac-key"
)

var (
	// ErrInvalidCiphertext is returned when the ciphertext is too short or
	// its ephemeral key is not a valid curve point.
	ErrInvalidCiphertext = errors.New("ecies: invalid ciphertext")
	// ErrMACMismatch is returned when HMAC verification fails. GCM
	// decryption is never attempted in that case.
	ErrMACMismatch = errors.New("ecies: HMAC verification failed")
)

// Encrypt encrypts plaintext to the P-384 public key given as uncompressed
// hex (with or without a 0x prefix, 194 hex chars).
func Encrypt(pubHex string, plaintext []byte) ([]byte, error) {
	pubBytes, err := hex.DecodeString(strings.TrimPrefix(pubHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "ecies: malformed public key hex")
	}
	x, y := elliptic.Unmarshal(elliptic.P384(), pubBytes)
	if x == nil {
		return nil, errors.New("ecies: public key is not a valid P-384 point")
	}

	ephemeral, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "ecies: ephemeral key generation failed")
	}
	aesKey, hmacKey, err := deriveKeys(sharedSecret(ephemeral.D, x, y))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "ecies: nonce generation failed")
	}
	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, pubKeyLen+nonceLen+len(ct)+hmacLen)
	out = append(out, elliptic.Marshal(elliptic.P384(), ephemeral.PublicKey.X, ephemeral.PublicKey.Y)...)
	out = append(out, nonce...)
	out = append(out, ct...)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(out)
	return mac.Sum(out), nil
}

// Decrypt reverses Encrypt with the recipient's P-384 private key.
func Decrypt(priv *ecdsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < pubKeyLen+nonceLen+tagLen+hmacLen {
		return nil, ErrInvalidCiphertext
	}
	ephBytes := ciphertext[:pubKeyLen]
	macStart := len(ciphertext) - hmacLen
	nonce := ciphertext[pubKeyLen : pubKeyLen+nonceLen]
	ct := ciphertext[pubKeyLen+nonceLen : macStart]

	x, y := elliptic.Unmarshal(elliptic.P384(), ephBytes)
	if x == nil {
		return nil, ErrInvalidCiphertext
	}
	aesKey, hmacKey, err := deriveKeys(sharedSecret(priv.D, x, y))
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext[:macStart])
	if !hmac.Equal(mac.Sum(nil), ciphertext[macStart:]) {
		return nil, ErrMACMismatch
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ecies: GCM decryption failed")
	}
	return pt, nil
}

// sharedSecret is the x coordinate of d*Q, left-padded to the curve size.
func sharedSecret(d *big.Int, x, y *big.Int) []byte {
	sx, _ := elliptic.P384().ScalarMult(x, y, d.Bytes())
	secret := make([]byte, 48)
	sx.FillBytes(secret)
	return secret
}

func deriveKeys(secret []byte) (aesKey, hmacKey []byte, err error) {
	aesKey = make([]byte, 32)
	if _, err = io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(aesInfo)), aesKey); err != nil {
		return nil, nil, errors.Wrap(err, "ecies: AES key derivation failed")
	}
	hmacKey = make([]byte, 32)
	if _, err = io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hmacInfo)), hmacKey); err != nil {
		return nil, nil, errors.Wrap(err, "ecies: HMAC key derivation failed")
	}
	return aesKey, hmacKey, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "ecies: cipher init failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "ecies: GCM init failed")
	}
	return gcm, nil
}
