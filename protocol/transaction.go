package protocol

import (
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
)

// TransactionHeader is the signed portion of a Transaction (spec.md §3).
type TransactionHeader struct {
	FamilyName        string
	FamilyVersion     string
	Inputs            []string
	Outputs           []string
	Dependencies      []string
	Nonce             string
	SignerPublicKey   string
	BatcherPublicKey  string
	PayloadSha512     string
}

// Encode serializes the header deterministically; the result is what
// header_signature is computed over and what HeaderBytes stores.
func (h *TransactionHeader) Encode() []byte {
	var b []byte
	b = appendString(b, fieldFamilyName, h.FamilyName)
	b = appendString(b, fieldFamilyVersion, h.FamilyVersion)
	b = appendStringRepeated(b, fieldInputs, h.Inputs)
	b = appendStringRepeated(b, fieldOutputs, h.Outputs)
	b = appendStringRepeated(b, fieldDependencies, h.Dependencies)
	b = appendString(b, fieldNonce, h.Nonce)
	b = appendString(b, fieldSignerPublicKey, h.SignerPublicKey)
	b = appendString(b, fieldBatcherPublicKey, h.BatcherPublicKey)
	b = appendString(b, fieldPayloadSha512, h.PayloadSha512)
	return b
}

// DecodeTransactionHeader parses bytes produced by Encode.
func DecodeTransactionHeader(buf []byte) (*TransactionHeader, error) {
	h := &TransactionHeader{}
	err := fieldReader(buf, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldFamilyName:
			h.FamilyName = bytesToString(v)
		case fieldFamilyVersion:
			h.FamilyVersion = bytesToString(v)
		case fieldInputs:
			h.Inputs = append(h.Inputs, bytesToString(v))
		case fieldOutputs:
			h.Outputs = append(h.Outputs, bytesToString(v))
		case fieldDependencies:
			h.Dependencies = append(h.Dependencies, bytesToString(v))
		case fieldNonce:
			h.Nonce = bytesToString(v)
		case fieldSignerPublicKey:
			h.SignerPublicKey = bytesToString(v)
		case fieldBatcherPublicKey:
			h.BatcherPublicKey = bytesToString(v)
		case fieldPayloadSha512:
			h.PayloadSha512 = bytesToString(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode transaction header: %w", err)
	}
	return h, nil
}

// Transaction is a signed unit of work (spec.md §3 "Transaction").
type Transaction struct {
	HeaderBytes     []byte
	HeaderSignature string
	Payload         []byte

	header *TransactionHeader
}

// Header lazily decodes and caches HeaderBytes.
func (t *Transaction) Header() (*TransactionHeader, error) {
	if t.header == nil {
		h, err := DecodeTransactionHeader(t.HeaderBytes)
		if err != nil {
			return nil, err
		}
		t.header = h
	}
	return t.header, nil
}

// NewSignedTransaction builds and signs a transaction from a header and
// payload. The signer is typically the transactor; batcher_public_key is
// signed as given in h, and NewSignedBatch does not set it (spec.md §3
// batch invariant, checked by Batch.Verify).
func NewSignedTransaction(h TransactionHeader, payload []byte, signer *crypto.PrivateKey) (*Transaction, error) {
	h.PayloadSha512 = crypto.Sha512Hex(payload)
	h.SignerPublicKey = signer.PublicKeyHex()
	headerBytes := h.Encode()
	return &Transaction{
		HeaderBytes:     headerBytes,
		HeaderSignature: signer.Sign(headerBytes),
		Payload:         payload,
		header:          &h,
	}, nil
}

// Verify checks header_signature and payload_sha512 (spec.md §3 invariant).
// It does not check namespace access; that is the scheduler/executor's job
// (spec.md §4.1) since it requires the declared inputs/outputs.
func (t *Transaction) Verify() error {
	h, err := t.Header()
	if err != nil {
		return err
	}
	if err := crypto.Verify(t.HeaderBytes, t.HeaderSignature, h.SignerPublicKey); err != nil {
		return fmt.Errorf("protocol: transaction %s: %w", t.ID(), err)
	}
	want := crypto.Sha512Hex(t.Payload)
	if want != h.PayloadSha512 {
		return fmt.Errorf("protocol: transaction %s: payload_sha512 mismatch", t.ID())
	}
	return nil
}

// ID is the transaction's content address: its header_signature.
func (t *Transaction) ID() string { return t.HeaderSignature }

// validHex reports whether s decodes as hex (used for signature/id sanity
// checks at admission, spec.md §8).
func validHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
