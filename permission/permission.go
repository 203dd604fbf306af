// Package permission implements the permission verifier (spec.md §4.9, C14):
// evaluating a (role_name, public_key) request against the on-chain identity
// namespace, falling back to off-chain validator-configured roles, then the
// default role, permitting if nothing applies. Grounded on validators.
// Manager's ordered, cached weight/role bookkeeping invalidated on
// validator-set change, generalized here from stake weights to permit/deny
// policy evaluation invalidated on chain head change.
package permission

import (
	"context"
	"sync"

	"github.com/hyperledger-archives/sawtooth-core-sub001/identity"
)

// DefaultRoleName is the role consulted when neither an on-chain nor an
// off-chain policy exists for the requested role (spec.md §4.9 step 3).
const DefaultRoleName = "default"

// Well-known role names named across spec.md §4.8/§4.9.
const (
	RoleNetwork                     = "network"
	RoleNetworkConsensus            = "network.consensus"
	RoleTransactorBatchSigner       = "transactor.batch_signer"
	RoleTransactorTransactionSigner = "transactor.transaction_signer"
)

// Source resolves on-chain role policies (satisfied by *identity.Source).
type Source interface {
	RolePolicy(stateRoot, roleName string) (identity.Policy, bool, error)
}

// Verifier evaluates permission requests, caching policy lookups per
// state_root (spec.md §4.9 "Caching").
type Verifier struct {
	source      Source
	offChain    map[string]identity.Policy

	mu    sync.Mutex
	cache map[string]map[string]identity.Policy // state_root -> role_name -> resolved policy
}

// New builds a Verifier. offChain holds validator-local role->policy
// overrides (spec.md §4.9 step 2) that have no on-chain presence; it is
// supplied directly rather than folded into config.Config, since it is
// validator-local operational state rather than consensus-relevant
// configuration.
func New(source Source, offChain map[string]identity.Policy) *Verifier {
	if offChain == nil {
		offChain = map[string]identity.Policy{}
	}
	return &Verifier{source: source, offChain: offChain, cache: map[string]map[string]identity.Policy{}}
}

// InvalidateHead drops all cached policy lookups, called when a new chain
// head is committed (spec.md §4.9 "invalidated when a new head is
// committed").
func (v *Verifier) InvalidateHead() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = map[string]map[string]identity.Policy{}
}

// Check evaluates whether publicKeyHex is permitted under roleName at
// stateRoot, per the three-step fallback in spec.md §4.9.
func (v *Verifier) Check(stateRoot, roleName, publicKeyHex string) (bool, error) {
	policy, found, err := v.resolve(stateRoot, roleName)
	if err != nil {
		return false, err
	}
	if found {
		return policy.Evaluate(publicKeyHex), nil
	}
	if roleName != DefaultRoleName {
		policy, found, err = v.resolve(stateRoot, DefaultRoleName)
		if err != nil {
			return false, err
		}
		if found {
			return policy.Evaluate(publicKeyHex), nil
		}
	}
	return true, nil
}

// resolve looks up roleName's policy, preferring an on-chain entry, then an
// off-chain override, caching the result keyed by (state_root, role_name).
func (v *Verifier) resolve(stateRoot, roleName string) (identity.Policy, bool, error) {
	v.mu.Lock()
	if byRole, ok := v.cache[stateRoot]; ok {
		if p, ok := byRole[roleName]; ok {
			v.mu.Unlock()
			return p, true, nil
		}
	}
	v.mu.Unlock()

	policy, found, err := v.source.RolePolicy(stateRoot, roleName)
	if err != nil {
		return identity.Policy{}, false, err
	}
	if !found {
		policy, found = v.offChain[roleName]
	}
	if found {
		v.mu.Lock()
		if v.cache[stateRoot] == nil {
			v.cache[stateRoot] = map[string]identity.Policy{}
		}
		v.cache[stateRoot][roleName] = policy
		v.mu.Unlock()
	}
	return policy, found, nil
}

// NetworkAuthorizer adapts a Verifier to network.Authorizer, evaluating each
// requested role against the current chain head's state_root.
type NetworkAuthorizer struct {
	Verifier   *Verifier
	HeadState  func() string
}

// Authorize grants exactly the requested roles that Check permits.
func (a NetworkAuthorizer) Authorize(_ context.Context, publicKeyHex string, requestedRoles []string) ([]string, error) {
	stateRoot := a.HeadState()
	var granted []string
	for _, role := range requestedRoles {
		ok, err := a.Verifier.Check(stateRoot, role, publicKeyHex)
		if err != nil {
			return nil, err
		}
		if ok {
			granted = append(granted, role)
		}
	}
	return granted, nil
}
