// Package identity implements the on-chain identity namespace (spec.md §3
// "Identity namespace"): role_name -> policy_name entries and
// policy_name -> ordered PERMIT_KEY/DENY_KEY rule lists, read from global
// state the same way package settings reads sawtooth.* keys. Grounded on
// validators.NewManager's ordered, first-match weight/role bookkeeping,
// generalized here from stake weights to an ordered permit/deny rule list.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// namespace is the identity family's address prefix (spec.md §6 "Address
// format": lowercase(SHA512(family_name))[0:6]).
var namespace = protocol.NamespacePrefix("sawtooth_identity")

func addressFor(kind, name string) protocol.Address {
	sum := sha256.Sum256([]byte(kind + ":" + name))
	return protocol.Address(namespace + hex.EncodeToString(sum[:])[:64])
}

// RoleAddress is the state address an on-chain role_name entry is stored at.
func RoleAddress(roleName string) protocol.Address { return addressFor("role", roleName) }

// PolicyAddress is the state address an on-chain policy_name entry is
// stored at.
func PolicyAddress(policyName string) protocol.Address { return addressFor("policy", policyName) }

// RuleType distinguishes a permit rule from a deny rule (spec.md §4.9).
type RuleType int

const (
	PermitKey RuleType = iota
	DenyKey
)

// Rule is one ordered entry of a policy: Key is either a specific public key
// or the wildcard "*".
type Rule struct {
	Type RuleType
	Key  string
}

// Policy is an ordered rule list; Evaluate stops at the first matching rule,
// denying implicitly if none match (spec.md §4.9 "end of policy implicitly
// denies").
type Policy struct {
	Name  string
	Rules []Rule
}

func (p Policy) Evaluate(publicKeyHex string) bool {
	for _, r := range p.Rules {
		if r.Key == "*" || r.Key == publicKeyHex {
			return r.Type == PermitKey
		}
	}
	return false
}

// The wire helpers below reimplement the small length-prefixed tag/value
// encoding used throughout this repo's other packages (protocol/codec.go,
// network/codec.go) rather than importing one of them, keeping each
// package's wire format independent as established by that convention.

const (
	fieldRolePolicyName protowire.Number = 1
	fieldPolicyName     protowire.Number = 1
	fieldPolicyRules    protowire.Number = 2
	fieldRuleType       protowire.Number = 1
	fieldRuleKey        protowire.Number = 2
)

// EncodeRole serializes a role's target policy_name.
func EncodeRole(policyName string) []byte {
	return protowire.AppendBytes(protowire.AppendTag(nil, fieldRolePolicyName, protowire.BytesType), []byte(policyName))
}

// DecodeRole parses bytes produced by EncodeRole.
func DecodeRole(buf []byte) (string, error) {
	var policyName string
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		if num == fieldRolePolicyName {
			policyName = string(v)
		}
		return nil
	})
	return policyName, err
}

func encodeRule(r Rule) []byte {
	var b []byte
	b = protowire.AppendVarint(protowire.AppendTag(b, fieldRuleType, protowire.VarintType), uint64(r.Type))
	b = protowire.AppendBytes(protowire.AppendTag(b, fieldRuleKey, protowire.BytesType), []byte(r.Key))
	return b
}

func decodeRule(buf []byte) (Rule, error) {
	var r Rule
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		switch num {
		case fieldRuleType:
			n, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return fmt.Errorf("identity: bad rule type")
			}
			r.Type = RuleType(n)
		case fieldRuleKey:
			r.Key = string(v)
		}
		return nil
	})
	return r, err
}

// EncodePolicy serializes a named, ordered rule list.
func EncodePolicy(p Policy) []byte {
	var b []byte
	b = protowire.AppendBytes(protowire.AppendTag(b, fieldPolicyName, protowire.BytesType), []byte(p.Name))
	for _, r := range p.Rules {
		b = protowire.AppendBytes(protowire.AppendTag(b, fieldPolicyRules, protowire.BytesType), encodeRule(r))
	}
	return b
}

// DecodePolicy parses bytes produced by EncodePolicy.
func DecodePolicy(buf []byte) (Policy, error) {
	p := Policy{}
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		switch num {
		case fieldPolicyName:
			p.Name = string(v)
		case fieldPolicyRules:
			r, err := decodeRule(v)
			if err != nil {
				return err
			}
			p.Rules = append(p.Rules, r)
		}
		return nil
	})
	return p, err
}

// fieldReader walks a length-prefixed field stream, the same shape
// protocol/codec.go's helper of the same name implements.
func fieldReader(buf []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("identity: bad tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return fmt.Errorf("identity: bad length-delimited field: %w", protowire.ParseError(m))
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			buf = buf[m:]
		case protowire.VarintType:
			val, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return fmt.Errorf("identity: bad varint field: %w", protowire.ParseError(m))
			}
			if err := fn(num, typ, protowire.AppendVarint(nil, val)); err != nil {
				return err
			}
			buf = buf[m:]
		default:
			return fmt.Errorf("identity: unsupported wire type %d", typ)
		}
	}
	return nil
}

// Source reads role/policy entries from global state at a given state_root.
type Source struct {
	trie *state.Trie
}

func New(trie *state.Trie) *Source { return &Source{trie: trie} }

// RolePolicy resolves roleName to its policy at stateRoot, if an on-chain
// entry exists for it (spec.md §4.9 step 1).
func (s *Source) RolePolicy(stateRoot, roleName string) (Policy, bool, error) {
	raw, ok, err := s.trie.Get(stateRoot, RoleAddress(roleName))
	if err != nil || !ok {
		return Policy{}, false, err
	}
	policyName, err := DecodeRole(raw)
	if err != nil {
		return Policy{}, false, fmt.Errorf("identity: decode role %q: %w", roleName, err)
	}
	return s.Policy(stateRoot, policyName)
}

// Policy fetches a named policy directly.
func (s *Source) Policy(stateRoot, policyName string) (Policy, bool, error) {
	raw, ok, err := s.trie.Get(stateRoot, PolicyAddress(policyName))
	if err != nil || !ok {
		return Policy{}, false, err
	}
	p, err := DecodePolicy(raw)
	if err != nil {
		return Policy{}, false, fmt.Errorf("identity: decode policy %q: %w", policyName, err)
	}
	return p, true, nil
}
