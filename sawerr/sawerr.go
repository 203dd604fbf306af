// Package sawerr defines the validator's closed taxonomy of structured
// errors. Component boundaries return these for failures a caller handles
// by category, so callers can recover locally with errors.As instead of
// string matching; some paths (blockstore's PutReceipt and SetChainHead, a
// non-hex address reaching the state trie) return plain errors.
package sawerr

import "fmt"

// Reason is a stable category name, independent of the wrapped cause's text.
type Reason string

const (
	// Validation
	ReasonBadSignature        Reason = "BadSignature"
	ReasonBadPayloadHash      Reason = "BadPayloadHash"
	ReasonBadStateRoot        Reason = "BadStateRoot"
	ReasonBadParent           Reason = "BadParent"
	ReasonUnknownFamily       Reason = "UnknownTransactionFamily"
	ReasonTxnOutOfNamespace   Reason = "TxnOutOfNamespace"
	ReasonMissingDependency   Reason = "MissingDependency"
	ReasonBatchInvalid        Reason = "BatchInvalid"

	// Permission
	ReasonTransactorDenied   Reason = "TransactorDenied"
	ReasonPeerDenied         Reason = "PeerDenied"
	ReasonConsensusPeerDenied Reason = "ConsensusPeerDenied"

	// Execution
	ReasonInvalidTransaction   Reason = "InvalidTransaction"
	ReasonInternalProcessorErr Reason = "InternalProcessorError"
	ReasonProcessorTimeout     Reason = "ProcessorTimeout"
	ReasonAuthorizationError   Reason = "AuthorizationError"

	// Consensus
	ReasonConsensusReject   Reason = "ConsensusReject"
	ReasonForkChoiceAborted Reason = "ForkChoiceAborted"

	// Storage
	ReasonCorruption Reason = "Corruption"
	ReasonNotFound   Reason = "NotFound"
	ReasonConflict   Reason = "Conflict"

	// Network
	ReasonHandshakeFailed       Reason = "HandshakeFailed"
	ReasonAuthorizationViolation Reason = "AuthorizationViolation"
	ReasonPeerUnreachable       Reason = "PeerUnreachable"
	ReasonBackpressure          Reason = "Backpressure"
)

// Class groups reasons into the six families spec.md §7 names, so
// propagation policy can be decided once per class instead of per reason.
type Class int

const (
	ClassValidation Class = iota
	ClassPermission
	ClassExecution
	ClassConsensus
	ClassStorage
	ClassNetwork
)

// Error is the structured error every component boundary returns.
type Error struct {
	Class  Class
	Reason Reason
	// Detail identifies the offending entity (a txn id, a block id, a peer
	// id); empty when the reason is self-explanatory.
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s(%s): %v", e.Reason, e.Detail, e.Cause)
		}
		return fmt.Sprintf("%s(%s)", e.Reason, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Reason so callers can use errors.Is(err, sawerr.New(ClassX, Reason, "", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

func New(class Class, reason Reason, detail string, cause error) *Error {
	return &Error{Class: class, Reason: reason, Detail: detail, Cause: cause}
}

func Validation(reason Reason, detail string, cause error) *Error {
	return New(ClassValidation, reason, detail, cause)
}

func Permission(reason Reason, detail string, cause error) *Error {
	return New(ClassPermission, reason, detail, cause)
}

func Execution(reason Reason, detail string, cause error) *Error {
	return New(ClassExecution, reason, detail, cause)
}

func Consensus(reason Reason, detail string, cause error) *Error {
	return New(ClassConsensus, reason, detail, cause)
}

func Storage(reason Reason, detail string, cause error) *Error {
	return New(ClassStorage, reason, detail, cause)
}

func Network(reason Reason, detail string, cause error) *Error {
	return New(ClassNetwork, reason, detail, cause)
}

// Fatal reports whether the error class must abort the process per spec.md
// §7 ("storage corruption is fatal").
func Fatal(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Class == ClassStorage && e.Reason == ReasonCorruption
}
