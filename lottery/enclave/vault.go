// Package enclave holds the secrets that never leave the process: the
// SECP384R1 transport keypair used for ECIES key injection and, once
// installed, the operator signing key inside the chain client. It also
// produces the attestation document that binds the transport key to the
// enclave's identity.
package enclave

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zfdang/enclave-lottery-app-sub000/crypto/ecies"
)

var log = logrus.WithField("prefix", "enclave")

// Vault owns the in-memory SECP384R1 keypair. The private key exists
// nowhere else; losing the process loses the key, which is the point.
type Vault struct {
	priv *ecdsa.PrivateKey
}

// NewVault generates a fresh keypair.
func NewVault() (*Vault, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate P-384 key")
	}
	log.WithField("publicKey", publicKeyHex(priv)).Info("Generated enclave transport keypair")
	return &Vault{priv: priv}, nil
}

// PublicKeyHex returns the uncompressed public point, 0x04||X||Y, 97 bytes
// as 194 hex characters.
func (v *Vault) PublicKeyHex() string {
	return publicKeyHex(v.priv)
}

// PublicKeyPEM returns the SubjectPublicKeyInfo PEM encoding.
func (v *Vault) PublicKeyPEM() (string, error) {
	der, err := v.PublicKeyDER()
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicKeyDER returns the DER-encoded public key for attestation binding.
func (v *Vault) PublicKeyDER() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&v.priv.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "marshal public key")
	}
	return der, nil
}

// Decrypt opens an ECIES envelope addressed to the vault key.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	return ecies.Decrypt(v.priv, ciphertext)
}

func publicKeyHex(priv *ecdsa.PrivateKey) string {
	curve := priv.PublicKey.Curve
	size := (curve.Params().BitSize + 7) / 8
	buf := make([]byte, 1+2*size)
	buf[0] = 0x04
	priv.PublicKey.X.FillBytes(buf[1 : 1+size])
	priv.PublicKey.Y.FillBytes(buf[1+size:])
	return hex.EncodeToString(buf)
}
