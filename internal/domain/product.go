package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const keySeparator = "::"

// ProductKey is the composite identity of a product record.
type ProductKey struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (k ProductKey) String() string {
	return k.Kind.String() + keySeparator + k.ID
}

// Encode returns the storage key for k: base64 of "kind::id".
func (k ProductKey) Encode() string {
	return base64.StdEncoding.EncodeToString([]byte(k.String()))
}

func DecodeProductKey(encoded string) (ProductKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ProductKey{}, fmt.Errorf("failed to decode product key %q: %w", encoded, err)
	}

	kind, id, ok := strings.Cut(string(raw), keySeparator)
	if !ok {
		return ProductKey{}, fmt.Errorf("malformed product key %q", string(raw))
	}

	return ProductKey{Kind: Kind(kind), ID: id}, nil
}

// Product is a catalog entry as delivered by the menu service.
type Product struct {
	Kind       Kind           `json:"kind"`
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (p Product) Key() ProductKey {
	return ProductKey{Kind: p.Kind, ID: p.ID}
}

// ProductRecord is what the local catalog index stores per product.
// Payload is nil for records written in keys-only mode.
type ProductRecord struct {
	Key      ProductKey
	Payload  []byte
	Modified time.Time
}

func (r *ProductRecord) HasPayload() bool {
	return r != nil && len(r.Payload) > 0
}
