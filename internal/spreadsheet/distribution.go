package spreadsheet

import (
	"fmt"
	"math"
	"sort"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DistributionKind tags which family a Distribution value belongs to.
type DistributionKind uint8

const (
	DistGaussian DistributionKind = iota
	DistLogNormal
	DistUniform
	DistConfidenceInterval
	DistSampled
)

func (k DistributionKind) String() string {
	switch k {
	case DistGaussian:
		return "gaussian"
	case DistLogNormal:
		return "lognormal"
	case DistUniform:
		return "uniform"
	case DistConfidenceInterval:
		return "confidence_interval"
	case DistSampled:
		return "sampled"
	default:
		return "unknown"
	}
}

// CIInterp selects which parametric family a ConfidenceInterval converts
// to when it is sampled.
type CIInterp uint8

const (
	CIInterpNormal CIInterp = iota
	CIInterpUniform
	CIInterpLogNormal
	// CIInterpAuto picks LogNormal when the interval is strictly positive
	// and wide (hi/lo >= 2), else Normal - see Distribution.resolveAutoInterp.
	CIInterpAuto
)

// Distribution is an uncertain quantity carried through arithmetic instead
// of a single float64. Every variant can materialize a Sampled
// representation on demand; arithmetic between two distributions always
// goes through that materialized form (see arithmetic.go), since there is
// no closed form for e.g. the product of two Gaussians.
type Distribution struct {
	Kind DistributionKind

	// Gaussian / LogNormal
	Mean   float64
	StdDev float64

	// Uniform
	Low  float64
	High float64

	// ConfidenceInterval
	Lower      float64
	Upper      float64
	Confidence float64  // percentage, e.g. 90, 95, 99
	Interp     CIInterp // which family [Lower, Upper] converts to on sampling

	// Sampled
	Values []float64
}

// NewGaussian constructs a parametric normal distribution.
func NewGaussian(mean, stdDev float64) Distribution {
	return Distribution{Kind: DistGaussian, Mean: mean, StdDev: stdDev}
}

// NewLogNormal constructs a parametric log-normal distribution, parameterized
// by the mean and standard deviation of the underlying normal in log space.
func NewLogNormal(mean, stdDev float64) Distribution {
	return Distribution{Kind: DistLogNormal, Mean: mean, StdDev: stdDev}
}

// NewUniform constructs a parametric continuous uniform distribution over [low, high].
func NewUniform(low, high float64) Distribution {
	return Distribution{Kind: DistUniform, Low: low, High: high}
}

// NewConfidenceInterval constructs a confidence interval. interp selects
// which parametric family [lower, upper] converts to when sampled. A
// LogNormal interpretation requires strictly positive bounds - a
// non-positive lower or upper bound falls back to Normal rather than
// producing a log(negative) downstream.
func NewConfidenceInterval(lower, upper, confidence float64, interp CIInterp) Distribution {
	if interp == CIInterpLogNormal && (lower <= 0 || upper <= 0) {
		interp = CIInterpNormal
	}
	return Distribution{
		Kind:       DistConfidenceInterval,
		Lower:      lower,
		Upper:      upper,
		Confidence: confidence,
		Interp:     interp,
	}
}

// resolveAutoInterp applies the Auto interpretation rule: LogNormal when the
// interval is strictly positive and wide (hi/lo >= 2), else Normal.
func resolveAutoInterp(lower, upper float64) CIInterp {
	if lower > 0 && upper/lower >= 2 {
		return CIInterpLogNormal
	}
	return CIInterpNormal
}

// NewSampled wraps a raw sample vector, e.g. the output of a Monte Carlo
// simulation fed in directly rather than constructed from a named family.
func NewSampled(samples []float64) Distribution {
	return Distribution{Kind: DistSampled, Values: samples}
}

// sampler builds the gonum distuv sampler backing a parametric distribution.
// Source nil is acceptable - distuv falls back to its own package-level
// source - but the engine always passes the shared RandomGenerator's
// source so a seeded Config makes sampling reproducible.
func (d Distribution) sampler(gen RandomGenerator) distuv.Rander {
	var src xrand.Source
	if gen != nil {
		src = gen.Source()
	}
	switch d.Kind {
	case DistGaussian:
		return distuv.Normal{Mu: d.Mean, Sigma: d.StdDev, Src: src}
	case DistLogNormal:
		return distuv.LogNormal{Mu: d.Mean, Sigma: d.StdDev, Src: src}
	case DistUniform:
		return distuv.Uniform{Min: d.Low, Max: d.High, Src: src}
	default:
		return nil
	}
}

// Samples returns sampleSize draws from the distribution, materializing a
// Sampled representation for any parametric family. A ConfidenceInterval is
// first converted to the Gaussian, LogNormal or Uniform its Interp selects
// (see toParametric) before sampling. An
// existing Sampled distribution is returned as-is, resized if needed by
// resampling with replacement from its own empirical values.
func (d Distribution) Samples(sampleSize int, gen RandomGenerator) ([]float64, error) {
	switch d.Kind {
	case DistSampled:
		if len(d.Values) == 0 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "empty sample distribution")
		}
		if len(d.Values) == sampleSize {
			out := make([]float64, len(d.Values))
			copy(out, d.Values)
			return out, nil
		}
		return resample(d.Values, sampleSize, gen), nil
	case DistConfidenceInterval:
		fitted := d.toParametric()
		return fitted.Samples(sampleSize, gen)
	case DistGaussian, DistLogNormal, DistUniform:
		rnd := d.sampler(gen)
		out := make([]float64, sampleSize)
		for i := range out {
			out[i] = rnd.Rand()
		}
		return out, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unknown distribution kind %d", d.Kind))
	}
}

// toParametric converts a ConfidenceInterval into the family selected by
// its Interp field. Normal and LogNormal use the z-score for the requested
// confidence level: the midpoint of [lower, upper] (or its log) becomes the
// mean, and half the interval width divided by z becomes the standard
// deviation. Uniform passes [lower, upper] straight through - the
// confidence level plays no role in a uniform interpretation.
func (d Distribution) toParametric() Distribution {
	interp := d.Interp
	if interp == CIInterpAuto {
		interp = resolveAutoInterp(d.Lower, d.Upper)
	}
	switch interp {
	case CIInterpUniform:
		return NewUniform(d.Lower, d.Upper)
	case CIInterpLogNormal:
		z := zScoreForConfidence(d.Confidence)
		logLower, logUpper := math.Log(d.Lower), math.Log(d.Upper)
		mean := (logLower + logUpper) / 2
		stdDev := (logUpper - logLower) / (2 * z)
		return NewLogNormal(mean, stdDev)
	default:
		z := zScoreForConfidence(d.Confidence)
		mean := (d.Lower + d.Upper) / 2
		stdDev := (d.Upper - d.Lower) / (2 * z)
		return NewGaussian(mean, stdDev)
	}
}

// resample draws n values with replacement from src, used to change the
// sample count of an already-materialized Sampled distribution without
// refitting a parametric family over it.
func resample(src []float64, n int, gen RandomGenerator) []float64 {
	draw := xrand.Float64
	if gen != nil {
		draw = gen.Float64
	}
	out := make([]float64, n)
	for i := range out {
		idx := int(draw() * float64(len(src)))
		if idx >= len(src) {
			idx = len(src) - 1
		}
		out[i] = src[idx]
	}
	return out
}

// MeanValue returns the distribution's mean analytically where a closed
// form exists, avoiding a Monte Carlo draw just to collapse an uncertain
// cell to a scalar (e.g. for legacy aggregates or display).
func (d Distribution) MeanValue() (float64, error) {
	switch d.Kind {
	case DistGaussian:
		return d.Mean, nil
	case DistLogNormal:
		return math.Exp(d.Mean + d.StdDev*d.StdDev/2), nil
	case DistUniform:
		return (d.Low + d.High) / 2, nil
	case DistConfidenceInterval:
		return d.toParametric().MeanValue()
	case DistSampled:
		if len(d.Values) == 0 {
			return 0, NewSpreadsheetError(ErrorCodeValue, "empty sample distribution")
		}
		return stat.Mean(d.Values, nil), nil
	default:
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unknown distribution kind %d", d.Kind))
	}
}

// Refit computes the mean, standard deviation and variance of an empirical
// sample vector, used when an operation needs to report summary parameters (Mean,
// StdDev) for a Sampled result rather than the raw vector itself.
func Refit(samples []float64) (mean, stdDev, variance float64) {
	mean = stat.Mean(samples, nil)
	variance = stat.Variance(samples, nil)
	stdDev = math.Sqrt(variance)
	return mean, stdDev, variance
}

// Percentile returns the p-th percentile (0-100) of a sample vector using
// gonum's empirical CDF quantile: the smallest sample whose cumulative
// fraction reaches p/100, with no interpolation between order statistics.
func Percentile(samples []float64, p float64) (float64, error) {
	if len(samples) == 0 {
		return 0, NewSpreadsheetError(ErrorCodeValue, "percentile of empty sample set")
	}
	if p < 0 || p > 100 {
		return 0, NewSpreadsheetError(ErrorCodeNum, "percentile must be between 0 and 100")
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.Empirical, sorted, nil), nil
}
