package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return k
}

func TestAddressValidate(t *testing.T) {
	prefix := NamespacePrefix("intkey")
	require.Len(t, prefix, 6)

	valid := Address(prefix + "0000000000000000000000000000000000000000000000000000000000000000"[:64])
	require.NoError(t, valid.Validate())

	tooShort := Address(prefix)
	require.Error(t, tooShort.Validate())

	upper := Address(prefix + "A000000000000000000000000000000000000000000000000000000000000000"[:64])
	require.Error(t, upper.Validate())
}

func TestTransactionSignAndVerify(t *testing.T) {
	signer := mustKey(t)
	header := TransactionHeader{
		FamilyName:    "intkey",
		FamilyVersion: "1.0",
		Inputs:        []string{"1cf126"},
		Outputs:       []string{"1cf126"},
		Nonce:         "abc123",
	}
	txn, err := NewSignedTransaction(header, []byte("set MyKey 999"), signer)
	require.NoError(t, err)
	require.NoError(t, txn.Verify())

	decoded, err := DecodeTransactionHeader(txn.HeaderBytes)
	require.NoError(t, err)
	require.Equal(t, header.FamilyName, decoded.FamilyName)
	require.Equal(t, header.Inputs, decoded.Inputs)
	require.Equal(t, header.Outputs, decoded.Outputs)
	require.Equal(t, signer.PublicKeyHex(), decoded.SignerPublicKey)
}

func TestTransactionVerifyRejectsTamperedPayload(t *testing.T) {
	signer := mustKey(t)
	txn, err := NewSignedTransaction(TransactionHeader{FamilyName: "intkey", FamilyVersion: "1.0"}, []byte("payload"), signer)
	require.NoError(t, err)

	txn.Payload = []byte("tampered")
	require.Error(t, txn.Verify())
}

func TestTransactionVerifyRejectsBadSignature(t *testing.T) {
	signer := mustKey(t)
	txn, err := NewSignedTransaction(TransactionHeader{FamilyName: "intkey", FamilyVersion: "1.0"}, []byte("payload"), signer)
	require.NoError(t, err)

	txn.HeaderSignature = "00" + txn.HeaderSignature[2:]
	require.Error(t, txn.Verify())
}

func TestBatchAtomicSignVerify(t *testing.T) {
	transactor := mustKey(t)
	batcher := mustKey(t)

	var txns []*Transaction
	for i := 0; i < 3; i++ {
		h := TransactionHeader{
			FamilyName:       "intkey",
			FamilyVersion:    "1.0",
			BatcherPublicKey: batcher.PublicKeyHex(),
		}
		txn, err := NewSignedTransaction(h, []byte("payload"), transactor)
		require.NoError(t, err)
		txns = append(txns, txn)
	}

	batch, err := NewSignedBatch(txns, batcher)
	require.NoError(t, err)
	require.NoError(t, batch.Verify())

	header, err := batch.Header()
	require.NoError(t, err)
	require.Len(t, header.TransactionIDs, 3)
}

func TestBatchVerifyRejectsWrongBatcher(t *testing.T) {
	transactor := mustKey(t)
	wrongBatcher := mustKey(t)
	realBatcher := mustKey(t)

	h := TransactionHeader{
		FamilyName:       "intkey",
		FamilyVersion:    "1.0",
		BatcherPublicKey: wrongBatcher.PublicKeyHex(),
	}
	txn, err := NewSignedTransaction(h, []byte("payload"), transactor)
	require.NoError(t, err)

	batch, err := NewSignedBatch([]*Transaction{txn}, realBatcher)
	require.NoError(t, err)
	require.Error(t, batch.Verify())
}

func TestBatchRejectsZeroTransactions(t *testing.T) {
	_, err := NewSignedBatch(nil, mustKey(t))
	require.Error(t, err)
}

func TestBlockSignAndVerifyGenesis(t *testing.T) {
	signer := mustKey(t)
	transactor := mustKey(t)

	txn, err := NewSignedTransaction(TransactionHeader{FamilyName: "sawtooth_settings", FamilyVersion: "1.0"}, []byte("payload"), transactor)
	require.NoError(t, err)
	batch, err := NewSignedBatch([]*Transaction{txn}, transactor)
	require.NoError(t, err)

	block, err := NewSignedBlock(0, NullBlockID, []*Batch{batch}, "deadbeef", nil, signer)
	require.NoError(t, err)
	require.NoError(t, block.VerifyStructure("", nil))
}

func TestBlockVerifyRejectsBadBlockNum(t *testing.T) {
	signer := mustKey(t)
	transactor := mustKey(t)
	txn, err := NewSignedTransaction(TransactionHeader{FamilyName: "intkey", FamilyVersion: "1.0"}, []byte("p"), transactor)
	require.NoError(t, err)
	batch, err := NewSignedBatch([]*Transaction{txn}, transactor)
	require.NoError(t, err)

	parent, err := NewSignedBlock(5, NullBlockID, []*Batch{batch}, "root5", nil, signer)
	require.NoError(t, err)
	parentHeader, err := parent.Header()
	require.NoError(t, err)

	child, err := NewSignedBlock(7, parent.ID(), []*Batch{batch}, "root7", nil, signer)
	require.NoError(t, err)
	require.Error(t, child.VerifyStructure(parent.ID(), parentHeader))
}
