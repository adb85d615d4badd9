package spreadsheet

import "math"

// arithOp names the binary operator an ArithmeticEngine call is performing,
// used to pick the right result-family classification for distribution
// operands.
type arithOp uint8

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opPow
)

// ArithmeticEngine carries the numerical-safety configuration (epsilon,
// sample size, RNG) that every add/sub/mul/div/pow call needs, so callers
// don't have to thread Config fields through every function signature.
type ArithmeticEngine struct {
	Epsilon    float64
	SampleSize int
	RNG        RandomGenerator
}

// NewArithmeticEngine builds an engine from a Spreadsheet's Config and the
// shared RNG backing its built-in functions.
func NewArithmeticEngine(cfg *Config, rng RandomGenerator) *ArithmeticEngine {
	return &ArithmeticEngine{
		Epsilon:    cfg.PrecisionEpsilon,
		SampleSize: cfg.SampleSize,
		RNG:        rng,
	}
}

// addWithEpsilonRaw returns l+r, snapped to zero when the sum is negligible
// relative to l - guards against formulas like =0.1+0.2-0.3 reporting a
// nonzero residual.
func (e *ArithmeticEngine) addWithEpsilonRaw(l, r float64) float64 {
	sum := l + r
	if math.Abs(sum) < e.Epsilon*math.Abs(l) {
		return 0
	}
	return sum
}

// floatCmp returns -1, 0, or 1 comparing l to r within the engine's
// epsilon tolerance, using an asymmetric multiplicative margin per the
// sign of r.
func (e *ArithmeticEngine) floatCmp(l, r float64) int {
	mod := 1 + e.Epsilon
	var equal bool
	if r >= 0 {
		equal = l*mod >= r && l <= r*mod
	} else {
		equal = l*mod <= r && l >= r*mod
	}
	if equal {
		return 0
	}
	if l < r {
		return -1
	}
	return 1
}

// isEffectivelyZero reports whether v should be treated as zero. Division
// contexts use a thousand-fold looser tolerance than general comparisons,
// since a near-zero divisor blows up disproportionately.
func (e *ArithmeticEngine) isEffectivelyZero(v float64, forDivision bool) bool {
	tol := e.Epsilon
	if forDivision {
		tol = e.Epsilon * 1000
	}
	if tol < 1e-12 {
		tol = 1e-12
	}
	return math.Abs(v) < tol
}

const maxSafeInteger = (1 << 53) - 1

// safeDivision returns a/b, or a #DIV/0! error if b is (effectively) zero
// or the result overflows what a spreadsheet cell can represent exactly.
func (e *ArithmeticEngine) safeDivision(a, b float64) (float64, error) {
	if b == 0 || e.isEffectivelyZero(b, true) {
		return 0, NewSpreadsheetError(ErrorCodeDiv0, "")
	}
	result := a / b
	if math.IsNaN(result) || math.IsInf(result, 0) || math.Abs(result) > maxSafeInteger {
		return 0, NewSpreadsheetError(ErrorCodeDiv0, "")
	}
	return result, nil
}

// safeMultiplication returns a*b, collapsing to exactly 0 if either operand
// is effectively zero rather than trusting floating point to land there.
func (e *ArithmeticEngine) safeMultiplication(a, b float64) float64 {
	if e.isEffectivelyZero(a, false) || e.isEffectivelyZero(b, false) {
		return 0
	}
	return a * b
}

// isDistribution reports whether v is a Distribution value (including one
// wrapped via checkForError's sibling path - callers are expected to have
// already ruled out *SpreadsheetError).
func isDistribution(v Primitive) (Distribution, bool) {
	d, ok := v.(Distribution)
	return d, ok
}

// toSampleVector returns sampleSize samples for an operand: a
// distribution's own draws, or a constant-filled vector for a scalar.
func (e *ArithmeticEngine) toSampleVector(v Primitive) ([]float64, error) {
	if d, ok := isDistribution(v); ok {
		return d.Samples(e.SampleSize, e.RNG)
	}
	num, ok := toNumber(v)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "operand is not numeric")
	}
	out := make([]float64, e.SampleSize)
	for i := range out {
		out[i] = num
	}
	return out, nil
}

// elementwise applies op to each pair of samples in a and b.
func elementwise(a, b []float64, op func(x, y float64) (float64, error)) ([]float64, error) {
	out := make([]float64, len(a))
	for i := range a {
		v, err := op(a[i], b[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// isKindOrScalar reports whether an operand is either absent as a
// distribution (a plain scalar) or a distribution of exactly want's kind -
// the building block for "both sides are X, or one side is X and the other
// a scalar" preservation rules.
func isKindOrScalar(isDist bool, kind, want DistributionKind) bool {
	return !isDist || kind == want
}

// classifyFamily fits the result samples to a named family according to
// the preservation rules for op and the operand kinds, falling back to a
// plain Sampled distribution when no closed family survives the operation.
func classifyFamily(op arithOp, leftKind, rightKind DistributionKind, leftIsDist, rightIsDist bool, samples []float64) Distribution {
	bothDist := leftIsDist && rightIsDist
	oneGaussian := (leftIsDist && leftKind == DistGaussian) || (rightIsDist && rightKind == DistGaussian)
	oneLogNormal := (leftIsDist && leftKind == DistLogNormal) || (rightIsDist && rightKind == DistLogNormal)
	oneUniform := (leftIsDist && leftKind == DistUniform) || (rightIsDist && rightKind == DistUniform)

	switch op {
	case opAdd, opSub:
		if oneGaussian && isKindOrScalar(leftIsDist, leftKind, DistGaussian) && isKindOrScalar(rightIsDist, rightKind, DistGaussian) {
			mean, stdDev, _ := Refit(samples)
			return NewGaussian(mean, stdDev)
		}
		if oneUniform && !bothDist && isKindOrScalar(leftIsDist, leftKind, DistUniform) && isKindOrScalar(rightIsDist, rightKind, DistUniform) {
			return NewSampled(samples).refitUniform()
		}
	case opMul, opDiv:
		if oneLogNormal && isKindOrScalar(leftIsDist, leftKind, DistLogNormal) && isKindOrScalar(rightIsDist, rightKind, DistLogNormal) && allPositive(samples) {
			mean, stdDev, _ := Refit(logSamples(samples))
			return NewLogNormal(mean, stdDev)
		}
		if bothDist && leftKind == DistGaussian && rightKind == DistGaussian {
			return NewSampled(samples)
		}
		// scalar-by-uniform preserves Uniform; uniform-by-uniform does not.
		if oneUniform && !bothDist {
			return NewSampled(samples).refitUniform()
		}
	case opPow:
		if leftKind == DistLogNormal && leftIsDist && !rightIsDist {
			mean, stdDev, _ := Refit(logSamples(samples))
			return NewLogNormal(mean, stdDev)
		}
	}
	return NewSampled(samples)
}

// refitUniform fits a Uniform distribution to the Sampled receiver's empirical
// min/max, falling back to a +/-0.5 window around the mean if the samples
// have collapsed to (nearly) a single point.
func (d Distribution) refitUniform() Distribution {
	if len(d.Values) == 0 {
		return d
	}
	lo, hi := d.Values[0], d.Values[0]
	for _, v := range d.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi-lo < 1e-12 {
		mid := (lo + hi) / 2
		return NewUniform(mid-0.5, mid+0.5)
	}
	return NewUniform(lo, hi)
}

// logSamples returns ln(x) for every positive sample, used when refitting a
// LogNormal family - non-positive draws are dropped rather than producing
// NaN log-likelihoods.
func logSamples(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, v := range samples {
		if v > 0 {
			out = append(out, math.Log(v))
		}
	}
	if len(out) == 0 {
		return []float64{0}
	}
	return out
}

// allPositive reports whether every sample is strictly positive - a
// LogNormal family can only be refit when its support stayed positive, e.g.
// scaling by a negative scalar (or negating) pushes it out of log-space.
func allPositive(samples []float64) bool {
	for _, v := range samples {
		if v <= 0 {
			return false
		}
	}
	return true
}

// distributionBinaryOp runs the full Monte-Carlo path for a binary operator
// where at least one operand is a distribution: sample both sides, apply
// the operator elementwise with the engine's safety wrappers, and classify
// the resulting family.
func (e *ArithmeticEngine) distributionBinaryOp(op arithOp, left, right Primitive, fn func(x, y float64) (float64, error)) (Primitive, error) {
	leftSamples, err := e.toSampleVector(left)
	if err != nil {
		return nil, err
	}
	rightSamples, err := e.toSampleVector(right)
	if err != nil {
		return nil, err
	}
	result, err := elementwise(leftSamples, rightSamples, fn)
	if err != nil {
		return nil, err
	}

	leftDist, leftIsDist := isDistribution(left)
	rightDist, rightIsDist := isDistribution(right)
	var leftKind, rightKind DistributionKind
	if leftIsDist {
		leftKind = leftDist.Kind
	}
	if rightIsDist {
		rightKind = rightDist.Kind
	}
	return classifyFamily(op, leftKind, rightKind, leftIsDist, rightIsDist, result), nil
}

// Add implements the + operator, including Monte-Carlo propagation when
// either operand is a distribution.
func (e *ArithmeticEngine) Add(left, right Primitive) (Primitive, error) {
	if err := checkForError(left); err != nil {
		return nil, err
	}
	if err := checkForError(right); err != nil {
		return nil, err
	}
	if _, ok := isDistribution(left); ok {
		return e.distributionBinaryOp(opAdd, left, right, func(x, y float64) (float64, error) { return e.addWithEpsilonRaw(x, y), nil })
	}
	if _, ok := isDistribution(right); ok {
		return e.distributionBinaryOp(opAdd, left, right, func(x, y float64) (float64, error) { return e.addWithEpsilonRaw(x, y), nil })
	}
	l, ok := toNumber(left)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return e.addWithEpsilonRaw(l, r), nil
}

// Sub implements the - operator.
func (e *ArithmeticEngine) Sub(left, right Primitive) (Primitive, error) {
	if err := checkForError(left); err != nil {
		return nil, err
	}
	if err := checkForError(right); err != nil {
		return nil, err
	}
	_, leftDist := isDistribution(left)
	_, rightDist := isDistribution(right)
	if leftDist || rightDist {
		return e.distributionBinaryOp(opSub, left, right, func(x, y float64) (float64, error) { return e.addWithEpsilonRaw(x, -y), nil })
	}
	l, ok := toNumber(left)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return e.addWithEpsilonRaw(l, -r), nil
}

// Mul implements the * operator.
func (e *ArithmeticEngine) Mul(left, right Primitive) (Primitive, error) {
	if err := checkForError(left); err != nil {
		return nil, err
	}
	if err := checkForError(right); err != nil {
		return nil, err
	}
	_, leftDist := isDistribution(left)
	_, rightDist := isDistribution(right)
	if leftDist || rightDist {
		return e.distributionBinaryOp(opMul, left, right, func(x, y float64) (float64, error) { return e.safeMultiplication(x, y), nil })
	}
	l, ok := toNumber(left)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return e.safeMultiplication(l, r), nil
}

// Div implements the / operator.
func (e *ArithmeticEngine) Div(left, right Primitive) (Primitive, error) {
	if err := checkForError(left); err != nil {
		return nil, err
	}
	if err := checkForError(right); err != nil {
		return nil, err
	}
	_, leftDist := isDistribution(left)
	_, rightDist := isDistribution(right)
	if leftDist || rightDist {
		return e.distributionBinaryOp(opDiv, left, right, e.safeDivision)
	}
	l, ok := toNumber(left)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return e.safeDivision(l, r)
}

// Pow implements the ^ operator.
func (e *ArithmeticEngine) Pow(left, right Primitive) (Primitive, error) {
	if err := checkForError(left); err != nil {
		return nil, err
	}
	if err := checkForError(right); err != nil {
		return nil, err
	}
	_, leftDist := isDistribution(left)
	_, rightDist := isDistribution(right)
	if leftDist || rightDist {
		return e.distributionBinaryOp(opPow, left, right, func(x, y float64) (float64, error) {
			result := math.Pow(x, y)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				return 0, NewSpreadsheetError(ErrorCodeNum, "")
			}
			return result, nil
		})
	}
	l, ok := toNumber(left)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	result := math.Pow(l, r)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, NewSpreadsheetError(ErrorCodeNum, "")
	}
	return result, nil
}

// UnaryMinus implements unary negation, negating every sample of a
// distribution operand.
func (e *ArithmeticEngine) UnaryMinus(v Primitive) (Primitive, error) {
	if err := checkForError(v); err != nil {
		return nil, err
	}
	if d, ok := isDistribution(v); ok {
		samples, err := d.Samples(e.SampleSize, e.RNG)
		if err != nil {
			return nil, err
		}
		negated := make([]float64, len(samples))
		for i, s := range samples {
			negated[i] = -s
		}
		return classifyFamily(opMul, d.Kind, DistGaussian, true, false, negated), nil
	}
	num, ok := toNumber(v)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return -num, nil
}

// UnaryPlus implements unary plus: a no-op that still enforces numeric
// coercion on scalar operands.
func (e *ArithmeticEngine) UnaryPlus(v Primitive) (Primitive, error) {
	if err := checkForError(v); err != nil {
		return nil, err
	}
	if _, ok := isDistribution(v); ok {
		return v, nil
	}
	num, ok := toNumber(v)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return num, nil
}

// UnaryPercent implements the trailing % operator, dividing by 100.
func (e *ArithmeticEngine) UnaryPercent(v Primitive) (Primitive, error) {
	if err := checkForError(v); err != nil {
		return nil, err
	}
	if d, ok := isDistribution(v); ok {
		samples, err := d.Samples(e.SampleSize, e.RNG)
		if err != nil {
			return nil, err
		}
		scaled := make([]float64, len(samples))
		for i, s := range samples {
			scaled[i] = s / 100
		}
		return classifyFamily(opMul, d.Kind, DistGaussian, true, false, scaled), nil
	}
	num, ok := toNumber(v)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return num / 100, nil
}

// comparisonValue reduces an operand to a single float64 for ordered
// comparison: a distribution compares by its mean, taken analytically where
// a closed form exists so two comparisons of the same distribution always
// agree regardless of Monte Carlo sampling noise.
func (e *ArithmeticEngine) comparisonValue(v Primitive) (float64, error) {
	if d, ok := isDistribution(v); ok {
		return d.MeanValue()
	}
	num, ok := toNumber(v)
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, "")
	}
	return num, nil
}

// Lt, Leq, Gt, Geq, Eq, Neq implement the ordered comparators using the
// engine's epsilon-tolerant floatCmp.
func (e *ArithmeticEngine) Lt(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c < 0, err
}

func (e *ArithmeticEngine) Leq(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c <= 0, err
}

func (e *ArithmeticEngine) Gt(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c > 0, err
}

func (e *ArithmeticEngine) Geq(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c >= 0, err
}

func (e *ArithmeticEngine) Eq(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c == 0, err
}

func (e *ArithmeticEngine) Neq(left, right Primitive) (bool, error) {
	c, err := e.compare(left, right)
	return c != 0, err
}

func (e *ArithmeticEngine) compare(left, right Primitive) (int, error) {
	if err := checkForError(left); err != nil {
		return 0, err
	}
	if err := checkForError(right); err != nil {
		return 0, err
	}
	l, err := e.comparisonValue(left)
	if err != nil {
		return 0, err
	}
	r, err := e.comparisonValue(right)
	if err != nil {
		return 0, err
	}
	return e.floatCmp(l, r), nil
}
