package pipeline

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"go-sim-loop/internal/model"
	"go-sim-loop/pkg/utils"
)

// VariationStrategy derives the parameters of the index-th (1-based) variant
// from a parent's parameters. Implementations must not modify params.
type VariationStrategy interface {
	Name() string
	Vary(params model.Parameters, index int) model.Parameters
}

// PerturbationConfig bounds the relative offsets applied by RandomPerturbation.
type PerturbationConfig struct {
	NormalMin   float64
	NormalMax   float64
	OutlierMin  float64
	OutlierMax  float64
	MinOutliers int
	MaxOutliers int
}

// DefaultPerturbation offsets parameters by 2-20%, with one to three outlier
// parameters offset by 10-30%.
func DefaultPerturbation() PerturbationConfig {
	return PerturbationConfig{
		NormalMin:   0.02,
		NormalMax:   0.20,
		OutlierMin:  0.10,
		OutlierMax:  0.30,
		MinOutliers: 1,
		MaxOutliers: 3,
	}
}

// RandomPerturbation applies a random relative offset with a random sign to
// every numeric parameter. Integer parameters stay integers.
type RandomPerturbation struct {
	cfg PerturbationConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPerturbation creates the strategy. A zero seed draws a random one.
func NewRandomPerturbation(cfg PerturbationConfig, seed int64) *RandomPerturbation {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	}
	return &RandomPerturbation{cfg: cfg, rng: rand.New(src)}
}

func (r *RandomPerturbation) Name() string { return "random" }

func (r *RandomPerturbation) Vary(params model.Parameters, _ int) model.Parameters {
	out := params.Clone()
	keys := numericKeys(params)
	if len(keys) == 0 {
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outliers := r.pickOutliers(keys)
	for _, k := range keys {
		lo, hi := r.cfg.NormalMin, r.cfg.NormalMax
		if outliers[k] {
			lo, hi = r.cfg.OutlierMin, r.cfg.OutlierMax
		}
		offset := lo + r.rng.Float64()*(hi-lo)
		if r.rng.IntN(2) == 0 {
			offset = -offset
		}
		out[k] = scale(params[k], 1+offset, hi)
	}
	return out
}

// pickOutliers chooses between MinOutliers and MaxOutliers keys, never more
// than there are numeric parameters.
func (r *RandomPerturbation) pickOutliers(keys []string) map[string]bool {
	hi := min(r.cfg.MaxOutliers, len(keys))
	lo := min(r.cfg.MinOutliers, hi)
	n := lo
	if hi > lo {
		n += r.rng.IntN(hi - lo + 1)
	}

	picked := make(map[string]bool, n)
	for _, i := range r.rng.Perm(len(keys))[:n] {
		picked[keys[i]] = true
	}
	return picked
}

// DefaultFixedScales keeps every variant within 20% of its parent.
var DefaultFixedScales = []float64{1.05, 0.95, 1.10, 0.90, 1.15, 0.85, 1.20, 0.80, 1.02, 0.98}

// Fixed multiplies every numeric parameter of variant i by Scales[(i-1) mod len].
type Fixed struct {
	Scales []float64
}

func (f Fixed) Name() string { return "fixed" }

func (f Fixed) Vary(params model.Parameters, index int) model.Parameters {
	out := params.Clone()
	if len(f.Scales) == 0 {
		return out
	}
	i := (index - 1) % len(f.Scales)
	if i < 0 {
		i += len(f.Scales)
	}
	for _, k := range numericKeys(params) {
		out[k] = scale(params[k], f.Scales[i], math.Abs(f.Scales[i]-1))
	}
	return out
}

// NewStrategy builds the strategy named by the generator configuration.
func NewStrategy(name string, cfg PerturbationConfig, seed int64) (VariationStrategy, error) {
	switch name {
	case "", "random":
		return NewRandomPerturbation(cfg, seed), nil
	case "fixed":
		return Fixed{Scales: DefaultFixedScales}, nil
	default:
		return nil, fmt.Errorf("unknown variation strategy %q", name)
	}
}

// numericKeys returns the sorted names of numeric parameters.
func numericKeys(params model.Parameters) []string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if model.IsNumericValue(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// scale multiplies a numeric parameter. Integer parameters are rounded, and a
// rounding that would move them more than maxRel away from v is pulled back
// toward v to the largest integer offset inside the band.
func scale(v interface{}, factor, maxRel float64) interface{} {
	f, _ := utils.Numeric(v)
	if !model.IsIntegerValue(v) {
		return f * factor
	}
	n := math.Round(f * factor)
	if limit := maxRel*math.Abs(f) + 1e-9; math.Abs(n-f) > limit {
		n = f + math.Copysign(math.Floor(limit), n-f)
	}
	return int64(n)
}
