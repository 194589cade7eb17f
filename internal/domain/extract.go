package domain

import "strings"

// Upstream payloads use inconsistent keys ("gene" vs "gene_symbol" vs
// "hasGene", singular vs plural blocks, mixed-case xref names). These helpers
// centralise the fallback reads so adapters canonicalise on read and emit
// only canonical keys.

// GetString returns the first non-empty string found under any of the keys.
func GetString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// GetFloat returns the first numeric value found under any of the keys.
func GetFloat(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// GetInt returns the first integer value found under any of the keys.
func GetInt(m map[string]interface{}, keys ...string) (int, bool) {
	if f, ok := GetFloat(m, keys...); ok {
		return int(f), true
	}
	return 0, false
}

// GetBool returns the first boolean found under any of the keys. String
// flags "Y"/"true" count as true, matching Europe PMC's fullTextOpenFlag.
func GetBool(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v
		case string:
			lv := strings.ToLower(v)
			if lv == "y" || lv == "true" {
				return true
			}
		}
	}
	return false
}

// GetMap returns the first nested object found under any of the keys.
func GetMap(m map[string]interface{}, keys ...string) map[string]interface{} {
	for _, k := range keys {
		if v, ok := m[k].(map[string]interface{}); ok {
			return v
		}
	}
	return nil
}

// GetSlice returns the first array found under any of the keys. A singular
// object under the same key is wrapped into a one-element slice, covering
// the genomicLocation singular/plural split.
func GetSlice(m map[string]interface{}, keys ...string) []interface{} {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []interface{}:
			return v
		case map[string]interface{}:
			return []interface{}{v}
		}
	}
	return nil
}

// GetMapSlice returns the objects of the first array found under the keys,
// skipping non-object elements.
func GetMapSlice(m map[string]interface{}, keys ...string) []map[string]interface{} {
	raw := GetSlice(m, keys...)
	if raw == nil {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

// GetStringSlice returns the strings of the first array found under the keys.
func GetStringSlice(m map[string]interface{}, keys ...string) []string {
	raw := GetSlice(m, keys...)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GenomicLocation returns the variant's genomic notation, preferring the
// raw_data block over the direct field when both are present. The upstream
// pipeline established that precedence; keep it until a stronger signal
// appears.
func GenomicLocation(m map[string]interface{}) string {
	if raw := GetMap(m, "raw_data", "rawData"); raw != nil {
		if loc := firstLocation(raw); loc != "" {
			return loc
		}
	}
	return firstLocation(m)
}

func firstLocation(m map[string]interface{}) string {
	if s := GetString(m, "genomicLocation", "genomic_location"); s != "" {
		return s
	}
	if locs := GetStringSlice(m, "genomicLocation", "genomicLocations", "genomic_locations"); len(locs) > 0 {
		return locs[0]
	}
	return ""
}

// NormalizeKey lower-cases and trims a cache or join key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
