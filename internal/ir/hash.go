package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainOperation separates operation hashes from any other hash family.
const DomainOperation = "tabwrite/update/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OperationID computes the content-addressed ID for an update.
// The execution context is excluded: the ID names what is changed, not who
// changed it.
func OperationID(table string, position int, set, where Row, seq int64) (string, error) {
	if where == nil {
		where = Row{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"table":    table,
		"position": position,
		"set":      set,
		"where":    where,
		"seq":      seq,
	})
	if err != nil {
		return "", fmt.Errorf("OperationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// NewUpdateOperation builds a descriptor with its ID computed.
func NewUpdateOperation(table string, position int, set, where Row, seq int64) (*UpdateOperation, error) {
	id, err := OperationID(table, position, set, where, seq)
	if err != nil {
		return nil, err
	}
	return &UpdateOperation{
		ID:       id,
		Table:    table,
		Position: position,
		Set:      set,
		Where:    where,
		Seq:      seq,
	}, nil
}

// MustUpdateOperation is like NewUpdateOperation but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustUpdateOperation(table string, position int, set, where Row, seq int64) *UpdateOperation {
	op, err := NewUpdateOperation(table, position, set, where, seq)
	if err != nil {
		panic(err)
	}
	return op
}
