// Package integrity provides the deterministic hashes jobwatch relies on:
// settings fingerprints for run grouping, length-prefixed field digests for
// identity keys and audit leaves, and Merkle roots over a run's audit entries.
// All functions are pure.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"time"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// fieldWriter writes each field as a 4-byte big-endian length prefix followed
// by the field bytes, so no delimiter inside a field can cause a collision.
type fieldWriter struct {
	h hash.Hash
}

func newFieldWriter() *fieldWriter {
	return &fieldWriter{h: sha256.New()}
}

func (w *fieldWriter) field(s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // fields are bounded by request body limits
	w.h.Write(lenBuf[:])
	w.h.Write([]byte(s))
}

func (w *fieldWriter) hex() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// FieldDigest returns the SHA-256 hex digest of the length-prefixed fields.
func FieldDigest(fields ...string) string {
	w := newFieldWriter()
	for _, f := range fields {
		w.field(f)
	}
	return w.hex()
}

// CanonicalSettings returns the canonical JSON encoding of the effective
// settings. Struct field order is fixed, so equal effective settings always
// encode to identical bytes.
func CanonicalSettings(s model.Settings) ([]byte, error) {
	b, err := json.Marshal(s.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("integrity: encode settings: %w", err)
	}
	return b, nil
}

// SettingsHash fingerprints the effective settings for run grouping.
func SettingsHash(s model.Settings) (string, error) {
	b, err := CanonicalSettings(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// AuditLeafHash hashes the decision-relevant fields of one audit entry.
func AuditLeafHash(e model.AuditEntry) string {
	w := newFieldWriter()
	w.field(e.RunID.String())
	w.field(e.DedupeKey)
	w.field(strconv.FormatBool(e.Included))
	w.field(string(e.OverrideAction))
	w.field(e.SettingsHash)
	for _, r := range e.Reasons {
		w.field(r.String())
	}
	return w.hex()
}

// TrainingSetID fingerprints a feedback log. A relevance model trained on the
// same rows reports the same id, so stale scores are recognisable.
func TrainingSetID(rows []model.Feedback) string {
	w := newFieldWriter()
	for _, r := range rows {
		w.field(r.DedupeKey)
		w.field(string(r.Label))
		w.field(r.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	return w.hex()
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
// The 0x01 prefix separates internal nodes from leaves (RFC 6962).
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the root.
// Leaves are sorted before building so the root does not depend on the order
// in which workers committed entries. Empty input yields an empty string.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := make([]string, len(leaves))
	copy(level, leaves)
	sort.Strings(level)
	if len(level) == 1 {
		return level[0]
	}

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Odd node: hash with itself for structural binding to tree position.
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
