// Package executor implements C9: dispatching one transaction to a
// registered processor over the component endpoint, enforcing a timeout
// per attempt and retrying on another matching processor up to a maximum
// attempt count before marking the transaction invalid (spec.md §4.3).
//
// Grounded on networking/sender.Sender's request dispatch with
// retry, generalized from block-fetch requests to transaction-processor
// requests, and on engine/chain/engine.go's ChainVM.Verify call shape for
// what "execute one unit of work and report an outcome" looks like.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/component"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// Executor implements scheduler.Executor by dispatching to processors
// registered with a component.Endpoint.
type Executor struct {
	endpoint    *component.Endpoint
	timeout     time.Duration
	maxAttempts int
	log         log.Logger
}

func New(endpoint *component.Endpoint, timeout time.Duration, maxAttempts int, logger log.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{endpoint: endpoint, timeout: timeout, maxAttempts: maxAttempts, log: logger}
}

// Execute sends txn to a matching processor, bound to a fresh context_id
// over txnCtx, retrying on timeout against a different processor up to
// maxAttempts (spec.md §4.3).
func (e *Executor) Execute(ctx context.Context, txnCtx *state.Context, txn *protocol.Transaction) (protocol.TxnStatus, string, error) {
	hdr, err := txn.Header()
	if err != nil {
		return protocol.TxnInvalid, "", sawerr.Validation(sawerr.ReasonBadSignature, txn.ID(), err)
	}

	contextID := e.endpoint.Contexts.Open(txnCtx)
	defer e.endpoint.Contexts.Close(contextID)

	req := component.ProcessRequest{
		ContextID: contextID,
		Header:    txn.HeaderBytes,
		Payload:   txn.Payload,
		Signature: txn.HeaderSignature,
	}

	tried := map[string]bool{}
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		reg, pickErr := e.endpoint.Processors.Pick(hdr.FamilyName, hdr.FamilyVersion, tried)
		if pickErr != nil {
			if len(tried) > 0 {
				break
			}
			return protocol.TxnInvalid, "UnknownTransactionFamily", nil
		}
		tried[reg.Identity] = true

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		resp, err := e.endpoint.Bus.Request(attemptCtx, reg.Identity, bus.Frame{
			MessageType: processRequestMessageType,
			Content:     req.Encode(),
		})
		cancel()
		if err != nil {
			lastErr = err
			if e.log != nil {
				e.log.Warn("processor request failed, retrying", "txn_id", txn.ID(), "processor", reg.Identity, "attempt", attempt+1, "err", err)
			}
			continue
		}

		procResp, err := component.DecodeProcessResponse(resp.Content)
		if err != nil {
			lastErr = err
			continue
		}
		switch procResp.Status {
		case component.StatusOK:
			return protocol.TxnValid, "", nil
		case component.StatusInvalidTransaction:
			return protocol.TxnInvalid, procResp.Message, nil
		default:
			lastErr = sawerr.Execution(sawerr.ReasonInternalProcessorErr, txn.ID(), nil)
		}
	}
	if lastErr == nil {
		lastErr = sawerr.Execution(sawerr.ReasonProcessorTimeout, txn.ID(), nil)
	}
	// A processor that responded with an unexpected status reported its own
	// internal error; every other exhausted-attempt cause (request failure,
	// malformed response, context deadline) is a processor timeout.
	reason := "ProcessorTimeout"
	var sawErr *sawerr.Error
	if errors.As(lastErr, &sawErr) && sawErr.Reason == sawerr.ReasonInternalProcessorErr {
		reason = "InternalError"
	}
	return protocol.TxnInvalid, reason, nil
}

const processRequestMessageType = "ProcessRequest"
