package cycle

import (
	"crypto/rand"
	"math/big"
)

// pickIndex draws a uniform index in [0, n). The draw decides who receives
// the pool, so it uses the crypto source rather than math/rand: a seedable
// generator would let whoever controls the seed steer the outcome.
func pickIndex(n int) (int, error) {
	if n <= 0 {
		return 0, errEmptyCandidateSet
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}
