package testutil

// ContiguousOrdinals reports whether ordinals are exactly {1..N} in any order.
func ContiguousOrdinals(ordinals []int) bool {
	seen := make([]bool, len(ordinals))

	for _, o := range ordinals {
		if o < 1 || o > len(ordinals) || seen[o-1] {
			return false
		}

		seen[o-1] = true
	}

	return true
}
