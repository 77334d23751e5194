package neighborhood

import (
	"math/rand/v2"
	"slices"
)

// sample draws k of idx uniformly without replacement with a partial
// Fisher-Yates shuffle, returning them sorted. idx is not modified.
func sample(rng *rand.Rand, idx []int, k int) []int {
	pool := slices.Clone(idx)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := pool[:k:k]
	slices.Sort(out)
	return out
}
