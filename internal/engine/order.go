package engine

import (
	"math/rand"

	"github.com/google/uuid"
)

// PresentationOrder fixes the order questions are shown in for one
// attempt: a uniform shuffle when the assessment asks for one, the
// catalog order otherwise. The input slice is never mutated.
func PresentationOrder(rng *rand.Rand, ids []uuid.UUID, shuffle bool) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	if shuffle && len(out) > 1 {
		rng.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}
	return out
}
