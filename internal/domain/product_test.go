package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductKey_Encode(t *testing.T) {
	key := ProductKey{Kind: KindItem, ID: "burger-01"}

	assert.Equal(t, "ITEM::burger-01", key.String())
	assert.Equal(t, "SVRFTTo6YnVyZ2VyLTAx", key.Encode())
}

func TestDecodeProductKey_RoundTrip(t *testing.T) {
	key := ProductKey{Kind: KindModifier, ID: "extra::cheese"}

	decoded, err := DecodeProductKey(key.Encode())
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestDecodeProductKey_Malformed(t *testing.T) {
	_, err := DecodeProductKey("not base64!")
	require.Error(t, err)

	_, err = DecodeProductKey("SVRFTQ==") // "ITEM" without separator
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed product key")
}

func TestCatalog_Counts(t *testing.T) {
	var empty *Catalog
	assert.False(t, empty.HasSections())
	assert.Equal(t, 0, empty.ProductCount())

	catalog := &Catalog{Sections: []Section{
		{Name: "burgers", Products: []Product{{Kind: KindItem, ID: "1"}, {Kind: KindItem, ID: "2"}}},
		{Name: "drinks"},
	}}
	assert.True(t, catalog.HasSections())
	assert.Equal(t, 2, catalog.ProductCount())
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindCombo.Valid())
	assert.False(t, Kind("SIDE").Valid())
	assert.Equal(t, "Unknown", Kind("SIDE").GetKindName())
}
