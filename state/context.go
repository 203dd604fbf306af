package state

import (
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
)

// Context is the per-transaction handle a processor's TpProcessRequest
// context_id resolves to: get_state/set_state/delete_state/add_event/
// add_receipt_data, each restricted to the declared inputs/outputs the
// transaction header named (spec.md §4.1 "A transaction may only read
// addresses within its declared inputs and only write addresses within
// its declared outputs; any other access is an AuthorizationError").
//
// Grounded on engine/chain's validation context, generalized from "is this
// peer/block allowed" checks to "is this address access allowed" checks
// against a fixed namespace list.
type Context struct {
	trie    *Trie
	base    string // state root this context's writes are layered on
	inputs  []string
	outputs []string

	reads   map[protocol.Address][]byte
	writes  map[protocol.Address]Change // ordered by insertion via order
	order   []protocol.Address
	events  []protocol.Event
	data    [][]byte
	deleted map[protocol.Address]bool
}

// NewContext opens a transaction-scoped view over trie at base, restricted
// to the given declared inputs/outputs.
func NewContext(trie *Trie, base string, inputs, outputs []string) *Context {
	return &Context{
		trie:    trie,
		base:    base,
		inputs:  inputs,
		outputs: outputs,
		reads:   map[protocol.Address][]byte{},
		writes:  map[protocol.Address]Change{},
		deleted: map[protocol.Address]bool{},
	}
}

func authorized(addr protocol.Address, namespaces []string) bool {
	return protocol.InAnyNamespace(addr, namespaces)
}

// GetState reads one or more addresses, serving from this context's own
// uncommitted writes first so a transaction observes its own effects
// before they land in the trie (spec.md §4.1).
func (c *Context) GetState(addresses []protocol.Address) (map[protocol.Address][]byte, error) {
	out := make(map[protocol.Address][]byte, len(addresses))
	var toFetch []protocol.Address
	for _, a := range addresses {
		if !authorized(a, c.inputs) {
			return nil, sawerr.Execution(sawerr.ReasonAuthorizationError, string(a), nil)
		}
		if c.deleted[a] {
			continue
		}
		if ch, ok := c.writes[a]; ok {
			out[a] = ch.Value
			continue
		}
		toFetch = append(toFetch, a)
	}
	if len(toFetch) > 0 {
		fetched, err := c.trie.GetMulti(c.base, toFetch)
		if err != nil {
			return nil, err
		}
		for a, v := range fetched {
			out[a] = v
			c.reads[a] = v
		}
	}
	return out, nil
}

// SetState stages writes to the given addresses, validating each against
// the transaction's declared outputs.
func (c *Context) SetState(entries map[protocol.Address][]byte) error {
	for a, v := range entries {
		if !authorized(a, c.outputs) {
			return sawerr.Execution(sawerr.ReasonAuthorizationError, string(a), nil)
		}
		c.stage(a, protocol.Set, v)
	}
	return nil
}

// DeleteState stages deletions, recording the prior value (from this
// context's reads, its own staged writes, or a trie lookup) so the
// resulting receipt can support rollback (spec.md §4.1, §9).
func (c *Context) DeleteState(addresses []protocol.Address) error {
	for _, a := range addresses {
		if !authorized(a, c.outputs) {
			return sawerr.Execution(sawerr.ReasonAuthorizationError, string(a), nil)
		}
		prior, err := c.priorValue(a)
		if err != nil {
			return err
		}
		c.stage(a, protocol.Delete, prior)
		c.deleted[a] = true
	}
	return nil
}

func (c *Context) priorValue(a protocol.Address) ([]byte, error) {
	if ch, ok := c.writes[a]; ok {
		return ch.Value, nil
	}
	if v, ok := c.reads[a]; ok {
		return v, nil
	}
	v, _, err := c.trie.Get(c.base, a)
	return v, err
}

func (c *Context) stage(a protocol.Address, kind protocol.ChangeKind, value []byte) {
	if _, exists := c.writes[a]; !exists {
		c.order = append(c.order, a)
	}
	c.writes[a] = Change{Address: a, Kind: kind, Value: value}
	if kind == protocol.Set {
		delete(c.deleted, a)
	}
}

// AddEvent appends an event to the transaction's receipt (spec.md §4.1).
func (c *Context) AddEvent(eventType string, attributes map[string]string, data []byte) {
	c.events = append(c.events, protocol.Event{Type: eventType, Attributes: attributes, Data: data})
}

// AddReceiptData appends opaque, non-state bytes to the transaction's
// receipt (spec.md §4.1).
func (c *Context) AddReceiptData(data []byte) {
	c.data = append(c.data, append([]byte(nil), data...))
}

// Changes returns the staged writes/deletes in the order they were first
// issued, the form Apply expects.
func (c *Context) Changes() []Change {
	out := make([]Change, 0, len(c.order))
	for _, a := range c.order {
		out = append(out, c.writes[a])
	}
	return out
}

// Events returns the events staged via AddEvent.
func (c *Context) Events() []protocol.Event { return c.events }

// ReceiptData returns the opaque bytes staged via AddReceiptData.
func (c *Context) ReceiptData() [][]byte { return c.data }
