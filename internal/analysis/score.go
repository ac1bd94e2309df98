package analysis

import (
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/thresholds"
)

// environmentScore maps a set of factor values to a 0-100 fit score
// against the unit's baseline ranges. Each factor contributes a linear
// penalty for deviation from its optimal, scaled to half the safe
// range; values outside the hard too-low/too-high bounds contribute
// zero. Factors without a value are skipped.
func environmentScore(resolver *thresholds.Resolver, unit domain.UnitSnapshot, values map[domain.Factor]float64) float64 {
	total := 0.0
	n := 0
	for _, factor := range domain.Factors() {
		value, present := values[factor]
		if !present {
			continue
		}
		rng := resolver.RangeFor(unit.PlantType, unit.GrowthStage, factor)
		total += factorScore(value, rng)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func factorScore(value float64, rng domain.ThresholdRange) float64 {
	if value < rng.TooLow || value > rng.TooHigh {
		return 0
	}
	tolerance := (rng.Max - rng.Min) / 2
	if tolerance <= 0 {
		return 100
	}
	deviation := value - rng.Optimal
	if deviation < 0 {
		deviation = -deviation
	}
	ratio := deviation / tolerance
	if ratio > 1 {
		ratio = 1
	}
	return 100 * (1 - ratio)
}
