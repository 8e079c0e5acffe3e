package ecies

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func genKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pub := elliptic.Marshal(elliptic.P384(), priv.PublicKey.X, priv.PublicKey.Y)
	return priv, "0x" + hex.EncodeToString(pub)
}

func TestRoundTrip(t *testing.T) {
	priv, pubHex := genKey(t)
	plaintext := []byte("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")

	ct, err := Encrypt(pubHex, plaintext)
	require.NoError(t, err)
	require.Equal(t, pubKeyLen+nonceLen+len(plaintext)+tagLen+hmacLen, len(ct))

	pt, err := Decrypt(priv, ct)
	require.NoError(t, err)
	assert.DeepEqual(t, plaintext, pt)
}

func TestRoundTrip_EmptyPlaintext(t *testing.T) {
	priv, pubHex := genKey(t)
	ct, err := Encrypt(pubHex, []byte{})
	require.NoError(t, err)
	pt, err := Decrypt(priv, ct)
	require.NoError(t, err)
	assert.Equal(t, 0, len(pt))
}

func TestDecrypt_TamperedByteFailsMAC(t *testing.T) {
	priv, pubHex := genKey(t)
	ct, err := Encrypt(pubHex, []byte("secret"))
	require.NoError(t, err)

	// Any single-byte mutation ahead of the MAC must be caught by HMAC
	// verification, not by GCM.
	for _, idx := range []int{0, pubKeyLen, pubKeyLen + nonceLen, len(ct) - hmacLen - 1} {
		mutated := make([]byte, len(ct))
		copy(mutated, ct)
		mutated[idx] ^= 0x01
		_, err := Decrypt(priv, mutated)
		if idx == 0 {
			// Flipping the point format byte breaks unmarshalling first.
			require.NotNil(t, err, "mutation at %d not detected", idx)
			continue
		}
		assert.ErrorContains(t, "HMAC verification failed", err, "mutation at %d", idx)
	}
}

func TestDecrypt_TamperedMACFails(t *testing.T) {
	priv, pubHex := genKey(t)
	ct, err := Encrypt(pubHex, []byte("secret"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0x01
	_, err = Decrypt(priv, ct)
	assert.ErrorContains(t, "HMAC verification failed", err)
}

func TestDecrypt_TooShort(t *testing.T) {
	priv, _ := genKey(t)
	_, err := Decrypt(priv, make([]byte, 50))
	assert.ErrorContains(t, "invalid ciphertext", err)
}

func TestDecrypt_WrongRecipient(t *testing.T) {
	_, pubHex := genKey(t)
	other, _ := genKey(t)
	ct, err := Encrypt(pubHex, []byte("secret"))
	require.NoError(t, err)
	_, err = Decrypt(other, ct)
	assert.ErrorContains(t, "HMAC verification failed", err)
}

func TestEncrypt_RejectsBadKey(t *testing.T) {
	_, err := Encrypt("0xzz", []byte("x"))
	assert.ErrorContains(t, "malformed public key hex", err)

	_, err = Encrypt("0x04"+hexZeros(192), []byte("x"))
	assert.ErrorContains(t, "not a valid P-384 point", err)
}

func hexZeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
