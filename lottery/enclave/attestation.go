package enclave

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
	"github.com/pkg/errors"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

// pcrCount is the number of platform configuration registers surfaced in
// the document; pcrSize is the SHA-384 digest length each holds.
const (
	pcrCount = 8
	pcrSize  = 48
)

// Attestor produces attestation documents binding the vault's public key
// and the operator identity. When the Nitro Security Module device is not
// present it falls back to a clearly-marked dummy document.
type Attestor struct {
	vault *Vault
	// operatorAddress returns the installed operator address, empty before
	// key injection.
	operatorAddress func() string
}

// NewAttestor wires the vault and the operator address source.
func NewAttestor(vault *Vault, operatorAddress func() string) *Attestor {
	return &Attestor{vault: vault, operatorAddress: operatorAddress}
}

// Attest returns an attestation document. It never fails: any hardware
// error degrades to the dummy document so the endpoint stays total.
func (a *Attestor) Attest() types.AttestationDocument {
	userData := a.userData()
	doc, err := a.hardwareAttest(userData)
	if err != nil {
		log.WithError(err).Debug("Hardware attestation unavailable, serving dummy document")
		return a.dummyDocument(userData)
	}
	return doc
}

// userData is the JSON blob embedded in the document. operator_address is
// an explicit null before installation so verifiers can tell the phases
// apart.
func (a *Attestor) userData() []byte {
	payload := map[string]interface{}{
		"operator_address":   nil,
		"tls_public_key_hex": a.vault.PublicKeyHex(),
	}
	if addr := a.operatorAddress(); addr != "" {
		payload["operator_address"] = addr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// The payload is two strings; this cannot fail.
		return []byte("{}")
	}
	return raw
}

func (a *Attestor) hardwareAttest(userData []byte) (types.AttestationDocument, error) {
	var doc types.AttestationDocument

	session, err := nsm.OpenDefaultSession()
	if err != nil {
		return doc, errors.Wrap(err, "open nsm session")
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Debug("Could not close nsm session")
		}
	}()

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return doc, errors.Wrap(err, "attestation nonce")
	}
	der, err := a.vault.PublicKeyDER()
	if err != nil {
		return doc, err
	}
	resp, err := session.Send(&request.Attestation{
		Nonce:     nonce,
		UserData:  userData,
		PublicKey: der,
	})
	if err != nil {
		return doc, errors.Wrap(err, "nsm attestation request")
	}
	if resp.Attestation == nil || len(resp.Attestation.Document) == 0 {
		return doc, errors.New("nsm returned no document")
	}
	return parseAttestation(resp.Attestation.Document)
}

// coseSign1 is the COSE_Sign1 array layout of the NSM document.
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

type attestationPayload struct {
	ModuleID    string          `cbor:"module_id"`
	Digest      string          `cbor:"digest"`
	Timestamp   uint64          `cbor:"timestamp"`
	PCRs        map[uint][]byte `cbor:"pcrs"`
	Certificate []byte          `cbor:"certificate"`
	CABundle    [][]byte        `cbor:"cabundle"`
	PublicKey   []byte          `cbor:"public_key"`
	UserData    []byte          `cbor:"user_data"`
	Nonce       []byte          `cbor:"nonce"`
}

// parseAttestation decodes the raw COSE document into the wire shape. The
// signature is carried verbatim for external verifiers; the enclave does
// not verify its own document.
func parseAttestation(raw []byte) (types.AttestationDocument, error) {
	var doc types.AttestationDocument

	var envelope coseSign1
	if err := cbor.Unmarshal(raw, &envelope); err != nil {
		return doc, errors.Wrap(err, "decode COSE envelope")
	}
	var payload attestationPayload
	if err := cbor.Unmarshal(envelope.Payload, &payload); err != nil {
		return doc, errors.Wrap(err, "decode attestation payload")
	}

	pcrs := make([]string, pcrCount)
	for i := uint(0); i < pcrCount; i++ {
		if v, ok := payload.PCRs[i]; ok {
			pcrs[i] = hex.EncodeToString(v)
		} else {
			pcrs[i] = hex.EncodeToString(make([]byte, pcrSize))
		}
	}
	bundle := make([]string, 0, len(payload.CABundle))
	for _, cert := range payload.CABundle {
		bundle = append(bundle, base64.StdEncoding.EncodeToString(cert))
	}

	return types.AttestationDocument{
		Verified:    true,
		ModuleID:    payload.ModuleID,
		Document:    base64.StdEncoding.EncodeToString(raw),
		Certificate: base64.StdEncoding.EncodeToString(payload.Certificate),
		CABundle:    bundle,
		PCRs:        pcrs,
		PublicKey:   base64.StdEncoding.EncodeToString(payload.PublicKey),
		UserData:    base64.StdEncoding.EncodeToString(payload.UserData),
		Timestamp:   payload.Timestamp,
	}, nil
}

// dummyDocument is served outside real enclaves. Verified false and an
// empty certificate are the contract that lets verifiers reject it.
func (a *Attestor) dummyDocument(userData []byte) types.AttestationDocument {
	pcrs := make([]string, pcrCount)
	zero := hex.EncodeToString(make([]byte, pcrSize))
	for i := range pcrs {
		pcrs[i] = zero
	}
	publicKey := ""
	if der, err := a.vault.PublicKeyDER(); err == nil {
		publicKey = base64.StdEncoding.EncodeToString(der)
	}
	return types.AttestationDocument{
		Verified:    false,
		ModuleID:    "dummy",
		Certificate: "",
		CABundle:    []string{},
		PCRs:        pcrs,
		PublicKey:   publicKey,
		UserData:    base64.StdEncoding.EncodeToString(userData),
		Timestamp:   uint64(time.Now().Unix()),
	}
}
