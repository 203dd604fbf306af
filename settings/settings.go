// Package settings reads on-chain sawtooth.* configuration keys from global
// state at a given state_root: sawtooth.consensus.algorithm.name/version,
// sawtooth.publisher.max_batches_per_block, sawtooth.settings.vote.
// authorized_keys, sawtooth.identity.allowed_keys,
// sawtooth.validator.transaction_families (SPEC_FULL.md §2.1). Grounded on
// the config/ package's shape for typed access to named values, the
// on-chain source generalized from a static file to a per-state_root trie
// read.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// Well-known setting keys named in SPEC_FULL.md §2.1.
const (
	KeyConsensusAlgorithmName    = "sawtooth.consensus.algorithm.name"
	KeyConsensusAlgorithmVersion = "sawtooth.consensus.algorithm.version"
	KeyMaxBatchesPerBlock        = "sawtooth.publisher.max_batches_per_block"
	KeyVoteAuthorizedKeys        = "sawtooth.settings.vote.authorized_keys"
	KeyIdentityAllowedKeys       = "sawtooth.identity.allowed_keys"
	KeyValidatorTransactionFamilies = "sawtooth.validator.transaction_families"
	KeyBlockInjectors               = "sawtooth.publisher.block_injectors"
)

var namespace = protocol.NamespacePrefix("sawtooth_settings")

// Address computes the state address a setting key is stored at. Unlike the
// original implementation's four-part dot-segment hash bucketing (meant to
// let several related keys share one address), this hashes the whole key in
// one pass: every distinct key gets its own address, which is simpler and
// collision-free in practice, at the cost of not grouping related keys into
// a single record the way the original does.
func Address(key string) protocol.Address {
	sum := sha256.Sum256([]byte(key))
	return protocol.Address(namespace + hex.EncodeToString(sum[:])[:64])
}

const fieldValue protowire.Number = 1

// Encode serializes a setting's string value.
func Encode(value string) []byte {
	return protowire.AppendBytes(protowire.AppendTag(nil, fieldValue, protowire.BytesType), []byte(value))
}

// Decode parses bytes produced by Encode.
func Decode(buf []byte) (string, error) {
	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 || typ != protowire.BytesType || num != fieldValue {
		return "", nil
	}
	v, m := protowire.ConsumeBytes(buf[n:])
	if m < 0 {
		return "", protowire.ParseError(m)
	}
	return string(v), nil
}

// Reader looks up typed setting values at a given state_root.
type Reader struct {
	trie *state.Trie
}

func New(trie *state.Trie) *Reader { return &Reader{trie: trie} }

// Get returns a setting's raw string value, if present.
func (r *Reader) Get(stateRoot, key string) (string, bool, error) {
	raw, ok, err := r.trie.Get(stateRoot, Address(key))
	if err != nil || !ok {
		return "", false, err
	}
	v, err := Decode(raw)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// GetInt returns a setting parsed as an integer, falling back to def if the
// key is absent or not a valid integer.
func (r *Reader) GetInt(stateRoot, key string, def int) (int, error) {
	v, ok, err := r.Get(stateRoot, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// GetList returns a setting parsed as a comma-separated list, the
// convention sawtooth.*.authorized_keys/allowed_keys/transaction_families
// values use.
func (r *Reader) GetList(stateRoot, key string) ([]string, error) {
	v, ok, err := r.Get(stateRoot, key)
	if err != nil || !ok {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}
