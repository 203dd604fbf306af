package protocol

// ChangeKind distinguishes a state write from a state delete. Receipts
// always record both, per SPEC_FULL.md §3.2's resolution of spec.md §9's
// stated Open Question ("modern nodes must record both sets and deletes
// to support correct fork rollback").
type ChangeKind int

const (
	Set ChangeKind = iota
	Delete
)

// StateChange is one address's before/after effect of applying a
// transaction (spec.md §3 "Block receipt").
type StateChange struct {
	Address Address
	Kind    ChangeKind
	// Value holds the new bytes for Set, and the previous bytes for
	// Delete. Since state.Trie is content-addressed, a fork switch never
	// replays this value; it is kept for event subscribers and audit
	// trails (events.StateDeltaEvent).
	Value []byte
}

// Event is emitted by add_event (spec.md §4.1) and is part of a
// transaction's receipt.
type Event struct {
	Type       string
	Attributes map[string]string
	Data       []byte
}

// TxnStatus is a single transaction's outcome within a batch (spec.md §4.2
// "Per-txn outcome").
type TxnStatus int

const (
	TxnValid TxnStatus = iota
	TxnInvalid
)

// TransactionReceipt records one transaction's execution outcome.
type TransactionReceipt struct {
	TransactionID string
	Status        TxnStatus
	// InvalidReason is set when Status == TxnInvalid.
	InvalidReason string
	StateChanges  []StateChange
	Events        []Event
	// Data is non-state data recorded via add_receipt_data (spec.md §4.1).
	Data [][]byte
}

// BlockReceipt is the ordered per-txn receipt set for one committed block
// (spec.md §3 "Block receipt").
type BlockReceipt struct {
	BlockID             string
	TransactionReceipts []*TransactionReceipt
}

// BatchStatus is the client-visible status lifecycle (spec.md §7).
type BatchStatus int

const (
	StatusPending BatchStatus = iota
	StatusCommitted
	StatusInvalid
	StatusUnknown
)

func (s BatchStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCommitted:
		return "COMMITTED"
	case StatusInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}
