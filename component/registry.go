// Package component implements C5: the component endpoint processors, the
// consensus engine, and the REST API all connect to over the bus (C4). It
// owns the registration bookkeeping for transaction processors (spec.md
// §4.3 "Processor connects over C4 and sends a RegisterRequest...") and the
// per-transaction context table the executor (C9) and processors round-trip
// GetState/SetState/DeleteState/AddEvent/AddReceiptData calls against.
//
// Grounded on networking/router/chain_router.go's multiplexing
// idiom (one inbound socket, many logical destinations keyed by message
// type/id), adapted from chain-id routing to family_name/family_version and
// context_id routing.
package component

import (
	"sync"

	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
)

// ProcessorKey identifies a registered processor's transaction family.
type ProcessorKey struct {
	FamilyName    string
	FamilyVersion string
}

// Registration is one connected processor (spec.md §4.3 RegisterRequest).
type Registration struct {
	Identity      string // the bus identity frame used to address this processor
	FamilyName    string
	FamilyVersion string
	Namespaces    []string
	MaxOccupancy  int
}

// ProcessorRegistry tracks connected processors per family, load-balancing
// duplicate registrations round-robin (spec.md §4.3 "duplicates per
// family_name/version are load-balanced").
type ProcessorRegistry struct {
	mu    sync.Mutex
	byKey map[ProcessorKey][]*Registration
	next  map[ProcessorKey]int
}

func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{
		byKey: make(map[ProcessorKey][]*Registration),
		next:  make(map[ProcessorKey]int),
	}
}

// Register records a processor's registration, appending to the pool for
// its family if one already exists.
func (r *ProcessorRegistry) Register(reg *Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ProcessorKey{FamilyName: reg.FamilyName, FamilyVersion: reg.FamilyVersion}
	r.byKey[key] = append(r.byKey[key], reg)
}

// Unregister drops every registration for identity, e.g. on disconnect.
func (r *ProcessorRegistry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, regs := range r.byKey {
		out := regs[:0]
		for _, reg := range regs {
			if reg.Identity != identity {
				out = append(out, reg)
			}
		}
		r.byKey[key] = out
	}
}

// Pick returns the next processor for (familyName, familyVersion) in
// round-robin order, excluding any identity in exclude (processors already
// tried and timed out for this transaction, spec.md §4.3 retry-on-timeout).
func (r *ProcessorRegistry) Pick(familyName, familyVersion string, exclude map[string]bool) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ProcessorKey{FamilyName: familyName, FamilyVersion: familyVersion}
	regs := r.byKey[key]
	if len(regs) == 0 {
		return nil, sawerr.Validation(sawerr.ReasonUnknownFamily, familyName+"/"+familyVersion, nil)
	}
	start := r.next[key]
	for i := 0; i < len(regs); i++ {
		idx := (start + i) % len(regs)
		reg := regs[idx]
		if exclude[reg.Identity] {
			continue
		}
		r.next[key] = (idx + 1) % len(regs)
		return reg, nil
	}
	return nil, sawerr.Validation(sawerr.ReasonUnknownFamily, familyName+"/"+familyVersion, nil)
}
