package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentValueScan(t *testing.T) {
	doc := Document{"question": "deploy to prod?", "risk": "high"}

	val, err := doc.Value()
	require.NoError(t, err)

	var out Document
	require.NoError(t, out.Scan(val))
	assert.Equal(t, "deploy to prod?", out["question"])
	assert.Equal(t, "high", out["risk"])
}

func TestDocumentScanNil(t *testing.T) {
	var doc Document
	require.NoError(t, doc.Scan(nil))
	assert.Nil(t, doc)

	val, err := doc.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestDocumentScanBytes(t *testing.T) {
	var doc Document
	require.NoError(t, doc.Scan([]byte(`{"answer":42}`)))
	assert.Equal(t, float64(42), doc["answer"])

	assert.Error(t, doc.Scan(3.14))
}

func TestDocumentClone(t *testing.T) {
	doc := Document{"nested": map[string]any{"k": "v"}}
	clone := doc.Clone()
	clone["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", doc["nested"].(map[string]any)["k"])

	assert.Nil(t, Document(nil).Clone())
}
