package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetString(t *testing.T) {
	m := map[string]interface{}{"gene": "", "gene_symbol": "CYP2C19", "count": 3}
	assert.Equal(t, "CYP2C19", GetString(m, "gene", "gene_symbol"))
	assert.Equal(t, "", GetString(m, "count"))
	assert.Equal(t, "", GetString(m, "missing"))
}

func TestGetFloatAndInt(t *testing.T) {
	m := map[string]interface{}{"f": 1.5, "i": 2, "s": "3"}

	f, ok := GetFloat(m, "f")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	n, ok := GetInt(m, "i")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = GetFloat(m, "s")
	assert.False(t, ok)
}

func TestGetBool(t *testing.T) {
	assert.True(t, GetBool(map[string]interface{}{"flag": true}, "flag"))
	assert.True(t, GetBool(map[string]interface{}{"flag": "Y"}, "flag"))
	assert.True(t, GetBool(map[string]interface{}{"flag": "true"}, "flag"))
	assert.False(t, GetBool(map[string]interface{}{"flag": "N"}, "flag"))
	assert.False(t, GetBool(map[string]interface{}{}, "flag"))
}

func TestGetSlice_WrapsSingularObject(t *testing.T) {
	m := map[string]interface{}{
		"genomicLocation": map[string]interface{}{"value": "chr10"},
	}
	wrapped := GetSlice(m, "genomicLocation")
	assert.Len(t, wrapped, 1)
}

func TestGetMapSlice_SkipsNonObjects(t *testing.T) {
	m := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"a": 1},
			"scalar",
			map[string]interface{}{"b": 2},
		},
	}
	assert.Len(t, GetMapSlice(m, "items"), 2)
}

func TestGenomicLocation_RawDataPrecedence(t *testing.T) {
	m := map[string]interface{}{
		"genomicLocation": "NC_000010.11:g.1A>T",
		"raw_data": map[string]interface{}{
			"genomicLocation": "NC_000010.11:g.94781859G>A",
		},
	}
	assert.Equal(t, "NC_000010.11:g.94781859G>A", GenomicLocation(m))

	direct := map[string]interface{}{"genomicLocation": "NC_000010.11:g.1A>T"}
	assert.Equal(t, "NC_000010.11:g.1A>T", GenomicLocation(direct))

	plural := map[string]interface{}{
		"genomicLocation": []interface{}{"NC_000022.11:g.42130692G>A", "NC_000022.11:g.42130692G>C"},
	}
	assert.Equal(t, "NC_000022.11:g.42130692G>A", GenomicLocation(plural))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "clopidogrel", NormalizeKey("  Clopidogrel "))
	assert.Equal(t, "", NormalizeKey("   "))
}
