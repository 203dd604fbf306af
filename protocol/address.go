package protocol

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 70-lowercase-hex-character state key: a 6-hex namespace
// prefix identifying the owning transaction family, followed by 64 hex
// characters of family-defined key material (spec.md §3 "Address").
type Address string

const (
	addressHexLen   = 70
	namespaceHexLen = 6
)

// NamespacePrefix returns lowercase(SHA512(family_name))[0:6], the default
// namespace prefix convention families use (spec.md §6 "Address format").
func NamespacePrefix(familyName string) string {
	sum := sha512.Sum512([]byte(familyName))
	return hex.EncodeToString(sum[:])[:namespaceHexLen]
}

// Validate reports whether a is a syntactically well-formed address:
// exactly 70 lowercase hex characters (spec.md §8 "Maximum 70-hex address;
// any other length is rejected at admission").
func (a Address) Validate() error {
	s := string(a)
	if len(s) != addressHexLen {
		return fmt.Errorf("protocol: address %q has length %d, want %d", s, len(s), addressHexLen)
	}
	if strings.ToLower(s) != s {
		return fmt.Errorf("protocol: address %q is not lowercase", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("protocol: address %q is not hex: %w", s, err)
	}
	return nil
}

// Namespace returns the address's 6-character namespace prefix.
func (a Address) Namespace() string {
	s := string(a)
	if len(s) < namespaceHexLen {
		return s
	}
	return s[:namespaceHexLen]
}

// InNamespace reports whether a begins with the given prefix (an entry of
// inputs[] or outputs[], which may themselves be a short prefix rather than
// a full 70-char address per spec.md §3 "state address prefixes or full
// addresses").
func (a Address) InNamespace(prefix string) bool {
	return strings.HasPrefix(string(a), prefix)
}

// InAnyNamespace reports whether a falls under at least one of prefixes.
func InAnyNamespace(a Address, prefixes []string) bool {
	for _, p := range prefixes {
		if a.InNamespace(p) {
			return true
		}
	}
	return false
}
