package value

// MergeMaps merges map values into a fresh map value.
//
// Later values override earlier ones when keys overlap. None and other
// non-map values are skipped.
func MergeMaps(sources ...Value) Value {
	size := 0
	for _, src := range sources {
		if m, ok := src.AsMap(); ok {
			size += len(m)
		}
	}
	result := make(map[string]Value, size)
	for _, src := range sources {
		m, ok := src.AsMap()
		if !ok {
			continue
		}
		for key, val := range m {
			result[key] = val
		}
	}
	return FromMap(result)
}
