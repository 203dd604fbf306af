package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
)

// BatchHeader is the signed portion of a Batch (spec.md §3 "Batch").
type BatchHeader struct {
	SignerPublicKey string
	TransactionIDs  []string
}

func (h *BatchHeader) Encode() []byte {
	var b []byte
	b = appendString(b, fieldSignerPublicKey, h.SignerPublicKey)
	b = appendStringRepeated(b, fieldTransactionIDs, h.TransactionIDs)
	return b
}

func DecodeBatchHeader(buf []byte) (*BatchHeader, error) {
	h := &BatchHeader{}
	err := fieldReader(buf, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldSignerPublicKey:
			h.SignerPublicKey = bytesToString(v)
		case fieldTransactionIDs:
			h.TransactionIDs = append(h.TransactionIDs, bytesToString(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode batch header: %w", err)
	}
	return h, nil
}

// Batch is an atomic commit unit: every contained transaction applies, or
// none do (spec.md §3 "Atomicity").
type Batch struct {
	HeaderBytes     []byte
	HeaderSignature string
	Transactions    []*Transaction

	header *BatchHeader
}

func (b *Batch) Header() (*BatchHeader, error) {
	if b.header == nil {
		h, err := DecodeBatchHeader(b.HeaderBytes)
		if err != nil {
			return nil, err
		}
		b.header = h
	}
	return b.header, nil
}

// ID is the batch's content address: its header_signature.
func (b *Batch) ID() string { return b.HeaderSignature }

// NewSignedBatch signs txns in order as a batch. Each txn's
// batcher_public_key must already equal signer's public key or be empty
// (spec.md §3 invariant), which is checked by Verify rather than enforced
// here so callers can assemble batches from independently-signed txns.
func NewSignedBatch(txns []*Transaction, signer *crypto.PrivateKey) (*Batch, error) {
	if len(txns) == 0 {
		return nil, fmt.Errorf("protocol: batch must contain at least one transaction")
	}
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID()
	}
	h := BatchHeader{
		SignerPublicKey: signer.PublicKeyHex(),
		TransactionIDs:  ids,
	}
	headerBytes := h.Encode()
	return &Batch{
		HeaderBytes:     headerBytes,
		HeaderSignature: signer.Sign(headerBytes),
		Transactions:    txns,
		header:          &h,
	}, nil
}

// Verify checks the batch signature, that transaction_ids matches
// Transactions' order, and each transaction's signature and
// batcher_public_key invariant (spec.md §3).
func (b *Batch) Verify() error {
	if len(b.Transactions) == 0 {
		return fmt.Errorf("protocol: batch %s: zero transactions", b.ID())
	}
	h, err := b.Header()
	if err != nil {
		return err
	}
	if err := crypto.Verify(b.HeaderBytes, b.HeaderSignature, h.SignerPublicKey); err != nil {
		return fmt.Errorf("protocol: batch %s: %w", b.ID(), err)
	}
	if len(h.TransactionIDs) != len(b.Transactions) {
		return fmt.Errorf("protocol: batch %s: transaction_ids length %d != transactions length %d",
			b.ID(), len(h.TransactionIDs), len(b.Transactions))
	}
	for i, t := range b.Transactions {
		if t.ID() != h.TransactionIDs[i] {
			return fmt.Errorf("protocol: batch %s: transaction_ids[%d] does not match contained transaction", b.ID(), i)
		}
		if err := t.Verify(); err != nil {
			return fmt.Errorf("protocol: batch %s: %w", b.ID(), err)
		}
		th, err := t.Header()
		if err != nil {
			return err
		}
		if th.BatcherPublicKey != "" && th.BatcherPublicKey != h.SignerPublicKey {
			return fmt.Errorf("protocol: batch %s: transaction %s batcher_public_key does not match batch signer", b.ID(), t.ID())
		}
	}
	return nil
}
