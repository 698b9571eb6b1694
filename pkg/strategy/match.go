package strategy

import (
	"math"

	"github.com/gregtusar/synthlong/pkg/models"
)

// MatchStrike returns the usable quote whose strike is nearest target, the
// lower strike winning ties. It reports false when no quote is usable.
func MatchStrike(quotes []models.OptionQuote, target float64) (models.OptionQuote, bool) {
	var best models.OptionQuote
	found := false
	bestDist := math.Inf(1)

	for _, q := range quotes {
		if !q.Usable() {
			continue
		}
		dist := math.Abs(q.Strike - target)
		if !found || dist < bestDist || (dist == bestDist && q.Strike < best.Strike) {
			best, bestDist, found = q, dist, true
		}
	}
	return best, found
}
