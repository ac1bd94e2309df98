package thresholds

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
)

// DefaultBlendWeight is the fraction of a recommendation attributed to
// the model prediction versus the catalog optimal.
const DefaultBlendWeight = 0.7

// Resolve blends a model-predicted optimal value with the catalog
// baseline and clamps the result into the safe range. A nil prediction
// (model disabled or gate failed) falls back to the catalog optimal.
// Pure and side-effect free; never fails.
func Resolve(baseline domain.ThresholdRange, predicted *float64, blendWeight float64) float64 {
	if predicted == nil {
		return baseline.Optimal
	}
	blended := blendWeight**predicted + (1-blendWeight)*baseline.Optimal
	return clamp(blended, baseline.Min, baseline.Max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Catalog looks up baseline threshold ranges. Implementations return
// ok=false when the plant type or stage is not present; callers fall
// back through the Resolver.
type Catalog interface {
	// Range returns the baseline for one factor of a plant type and
	// growth stage.
	Range(plantType, stage string, factor domain.Factor) (domain.ThresholdRange, bool)
	// Stages lists the growth stages known for a plant type.
	Stages(plantType string) []string
}

type cacheKey struct {
	plantType string
	stage     string
	factor    domain.Factor
}

// Resolver serves baseline ranges with caching and degradation: exact
// (plant, stage) hit, then a range averaged across the plant's known
// stages, then fixed generic defaults. Lookups never fail.
type Resolver struct {
	catalog Catalog

	mu    sync.RWMutex
	cache map[cacheKey]domain.ThresholdRange
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{
		catalog: catalog,
		cache:   make(map[cacheKey]domain.ThresholdRange),
	}
}

// RangeFor returns the baseline range for one factor, degrading to a
// stage average or the generic default instead of failing.
func (r *Resolver) RangeFor(plantType, stage string, factor domain.Factor) domain.ThresholdRange {
	key := cacheKey{plantType, stage, factor}

	r.mu.RLock()
	cached, hit := r.cache[key]
	r.mu.RUnlock()
	if hit {
		return cached
	}

	resolved := r.lookup(plantType, stage, factor)

	r.mu.Lock()
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved
}

func (r *Resolver) lookup(plantType, stage string, factor domain.Factor) domain.ThresholdRange {
	if rng, ok := r.catalog.Range(plantType, stage, factor); ok {
		return rng
	}

	// Stage unknown for this plant: average the ranges across every
	// stage the catalog does know.
	stages := r.catalog.Stages(plantType)
	if len(stages) > 0 {
		var sum domain.ThresholdRange
		n := 0
		for _, s := range stages {
			rng, ok := r.catalog.Range(plantType, s, factor)
			if !ok {
				continue
			}
			sum.Min += rng.Min
			sum.Max += rng.Max
			sum.Optimal += rng.Optimal
			sum.TooLow += rng.TooLow
			sum.TooHigh += rng.TooHigh
			n++
		}
		if n > 0 {
			fn := float64(n)
			log.Debug().Str("plant_type", plantType).Str("stage", stage).Str("factor", string(factor)).
				Msg("stage not in catalog, using stage-averaged range")
			return domain.ThresholdRange{
				Min:     sum.Min / fn,
				Max:     sum.Max / fn,
				Optimal: sum.Optimal / fn,
				TooLow:  sum.TooLow / fn,
				TooHigh: sum.TooHigh / fn,
			}
		}
	}

	log.Debug().Str("plant_type", plantType).Str("factor", string(factor)).
		Msg("plant type not in catalog, using generic defaults")
	return GenericDefault(factor)
}

// GenericDefault returns the documented safe constants used when a
// plant type is absent from the catalog entirely.
func GenericDefault(factor domain.Factor) domain.ThresholdRange {
	switch factor {
	case domain.FactorTemperature:
		return domain.ThresholdRange{Min: 18, Max: 28, Optimal: 23, TooLow: 12, TooHigh: 32}
	case domain.FactorHumidity:
		return domain.ThresholdRange{Min: 40, Max: 70, Optimal: 55, TooLow: 25, TooHigh: 85}
	case domain.FactorSoilMoisture:
		return domain.ThresholdRange{Min: 30, Max: 70, Optimal: 50, TooLow: 15, TooHigh: 85}
	case domain.FactorCO2:
		return domain.ThresholdRange{Min: 400, Max: 1200, Optimal: 800, TooLow: 250, TooHigh: 1800}
	default:
		return domain.ThresholdRange{Min: 0, Max: 100, Optimal: 50, TooLow: 0, TooHigh: 100}
	}
}
