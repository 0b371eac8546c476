package value

// Map is an ordered string-keyed map, preserving the document's original
// key insertion order rather than Go's randomized map iteration.
type Map struct {
	keys   []string
	values map[string]Located
}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{values: map[string]Located{}}
}

// Set inserts or overwrites the value at key, preserving its original
// position in iteration order if the key already existed.
func (m *Map) Set(key string, v Located) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value at key and whether it was present.
func (m *Map) Get(key string) (Located, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []string { return m.keys }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Values returns the map's values in insertion order.
func (m *Map) Values() []Located {
	out := make([]Located, len(m.keys))
	for i, k := range m.keys {
		out[i] = m.values[k]
	}
	return out
}

// Equal reports whether m and other have the same keys, in the same
// order, with structurally equal values.
func (m *Map) Equal(other *Map) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.keys) != len(other.keys) {
		return false
	}
	for i, k := range m.keys {
		if other.keys[i] != k {
			return false
		}
		if !Equal(m.values[k].Value, other.values[k].Value) {
			return false
		}
	}
	return true
}
