package hash

import (
	"bytes"
	"cmp"
)

// Comparator orders two keys: negative, zero or positive like bytes.Compare.
type Comparator[K any] func(a, b K) int

// IntComparator works for any ordered integer key.
func IntComparator[K cmp.Ordered](a, b K) int {
	return cmp.Compare(a, b)
}

func GenericComparator(a, b GenericKey) int {
	return bytes.Compare(a, b)
}
