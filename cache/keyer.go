package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Keyer derives cache keys from a namespace and a payload.
//
// Contract:
// - Determinism: the same inputs produce the same key in every process.
// - Injectivity: distinct (namespace, payload) pairs produce distinct keys.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(namespace, payload string) string
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// maxPrefixLen bounds the readable namespace prefix of a key.
const maxPrefixLen = 64

// Key returns "<prefix>:<hex sha256>". Namespace and payload are both
// length-prefixed before hashing, so ("a:b", "c") and ("a", "b:c") hash
// differently. The prefix is the namespace itself when it is a plain name
// (see IsPlainNamespace) and "ns-" plus 16 hex digits of its hash
// otherwise, so keys stay short and single-line for any input.
func (k *DefaultKeyer) Key(namespace, payload string) string {
	h := sha256.New()
	writeField(h, namespace)
	writeField(h, payload)
	return keyPrefix(namespace) + ":" + hex.EncodeToString(h.Sum(nil))
}

// IsPlainNamespace reports whether ns is at most 64 bytes of ASCII letters,
// digits, '.', '_' or '-'.
func IsPlainNamespace(ns string) bool {
	if len(ns) > maxPrefixLen {
		return false
	}
	for i := 0; i < len(ns); i++ {
		c := ns[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func keyPrefix(ns string) string {
	if IsPlainNamespace(ns) {
		return ns
	}
	sum := sha256.Sum256([]byte(ns))
	return "ns-" + hex.EncodeToString(sum[:8])
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

var _ Keyer = (*DefaultKeyer)(nil)
