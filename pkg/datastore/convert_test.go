package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID     string          `json:"id"`
	Count  int             `json:"count"`
	Flags  map[string]bool `json:"flags"`
	Labels []string        `json:"labels"`
}

func TestEncodeDecode(t *testing.T) {
	in := sample{ID: "a", Count: 3, Flags: map[string]bool{"x": true}, Labels: []string{"l1"}}

	doc, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "a", doc["id"])
	assert.Equal(t, float64(3), doc["count"])

	var out sample
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, in, out)
}

func TestEncode_rejectsNonObjects(t *testing.T) {
	_, err := Encode([]string{"a"})
	require.Error(t, err)
}

func TestClone_isDeep(t *testing.T) {
	doc := Document{"nested": map[string]any{"k": "v"}, "list": []any{"a"}}
	clone, err := Clone(doc)
	require.NoError(t, err)

	clone["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", doc["nested"].(map[string]any)["k"])
}

func TestClone_normalizesInterfaceKeyedMaps(t *testing.T) {
	doc := Document{"m": map[any]any{"a": uint64(1)}}
	clone, err := Clone(doc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, clone["m"])
}

func TestMatches(t *testing.T) {
	type named string
	doc := Document{"conversaId": "c1", "count": float64(2), "ok": true}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"string field", Filter{"conversaId": "c1"}, true},
		{"named string type", Filter{"conversaId": named("c1")}, true},
		{"integer against float", Filter{"count": 2}, true},
		{"uint64 against float", Filter{"count": uint64(2)}, true},
		{"bool field", Filter{"ok": true}, true},
		{"different value", Filter{"conversaId": "c2"}, false},
		{"missing field", Filter{"other": "x"}, false},
		{"number against string", Filter{"count": "2"}, false},
		{"all fields must match", Filter{"conversaId": "c1", "ok": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(doc, tt.filter))
		})
	}
}
