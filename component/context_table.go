package component

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// ContextTable maps a context_id (handed to a processor in ProcessRequest)
// to the in-process state.Context a transaction's GetState/SetState/
// DeleteState/AddEvent/AddReceiptData calls round-trip against (spec.md
// §4.3 "Processor may make ... round-trips bound to context_id").
type ContextTable struct {
	mu   sync.Mutex
	byID map[string]*state.Context
}

func NewContextTable() *ContextTable {
	return &ContextTable{byID: make(map[string]*state.Context)}
}

// Open registers ctx under a fresh context_id.
func (t *ContextTable) Open(ctx *state.Context) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.byID[id] = ctx
	t.mu.Unlock()
	return id
}

// Close removes a context_id once its transaction has finished executing.
func (t *ContextTable) Close(contextID string) {
	t.mu.Lock()
	delete(t.byID, contextID)
	t.mu.Unlock()
}

func (t *ContextTable) get(contextID string) (*state.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, ok := t.byID[contextID]
	if !ok {
		return nil, sawerr.Execution(sawerr.ReasonAuthorizationError, contextID, nil)
	}
	return ctx, nil
}
