package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	xrand "golang.org/x/exp/rand"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
// and for the RAND/RANDBETWEEN builtins. Source exposes the underlying
// golang.org/x/exp/rand.Source so gonum's distuv distributions can draw
// from the exact same stream as RAND/RANDBETWEEN, making an entire recompute
// pass reproducible from a single seed.
type RandomGenerator interface {
	Float64() float64
	Source() xrand.Source
}

// SeededRandomGenerator wraps a golang.org/x/exp/rand.Rand so every
// sampling path in the engine - RAND(), RANDBETWEEN(), and distuv-backed
// distribution sampling - draws from one deterministic stream when a seed
// is configured.
type SeededRandomGenerator struct {
	src *xrand.Rand
}

// NewSeededRandomGenerator builds a generator seeded from seed. A nil seed
// falls back to a time-derived seed so unconfigured engines still behave
// like a normal RNG.
func NewSeededRandomGenerator(seed *uint64) *SeededRandomGenerator {
	var s uint64
	if seed != nil {
		s = *seed
	} else {
		s = uint64(time.Now().UnixNano())
	}
	return &SeededRandomGenerator{src: xrand.New(xrand.NewSource(s))}
}

func (g *SeededRandomGenerator) Float64() float64 {
	return g.src.Float64()
}

func (g *SeededRandomGenerator) Source() xrand.Source {
	return g.src
}

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	clock      Clock
	rng        RandomGenerator
	sampleSize int
	cfg        *Config
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations, seeded from system time.
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctionsWithSeed(nil)
}

// NewBuiltInFunctionsWithSeed creates a BuiltInFunctions whose RNG - shared
// by RAND(), RANDBETWEEN() and every distribution-sampling builtin - is
// deterministic when seed is non-nil. Sample vectors default to
// DefaultConfig's SampleSize; use NewBuiltInFunctionsWithConfig to override it.
func NewBuiltInFunctionsWithSeed(seed *uint64) *BuiltInFunctions {
	return NewBuiltInFunctionsWithConfig(&Config{RNGSeed: seed, SampleSize: DefaultConfig().SampleSize})
}

// NewBuiltInFunctionsWithConfig creates a BuiltInFunctions honoring a
// caller-supplied Config's RNGSeed, SampleSize, and text-matching flags
// (CaseSensitive/AccentSensitive, consulted by SEARCH/SWITCH/COUNTUNIQUE).
func NewBuiltInFunctionsWithConfig(cfg *Config) *BuiltInFunctions {
	return &BuiltInFunctions{
		clock:      &WallClock{},
		rng:        NewSeededRandomGenerator(cfg.RNGSeed),
		sampleSize: cfg.SampleSize,
		cfg:        cfg,
	}
}

// Call invokes a built-in function by name with the given arguments
func (bf *BuiltInFunctions) Call(name string, args ...any) (Primitive, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(args...)
	case "AVERAGE":
		return bf.AVERAGE(args...)
	case "AVERAGEA":
		return bf.AVERAGEA(args...)
	case "COUNT":
		return bf.COUNT(args...)
	case "COUNTA":
		return bf.COUNTA(args...)
	case "MAX":
		return bf.MAX(args...)
	case "MIN":
		return bf.MIN(args...)
	case "MEDIAN":
		return bf.MEDIAN(args...)
	case "MODE":
		return bf.MODE(args...)
	case "IF":
		return bf.IF(args...)
	case "AND":
		return bf.AND(args...)
	case "OR":
		return bf.OR(args...)
	case "NOT":
		return bf.NOT(args...)
	case "CONCATENATE":
		return bf.CONCATENATE(args...)
	case "LEN":
		return bf.LEN(args...)
	case "UPPER":
		return bf.UPPER(args...)
	case "LOWER":
		return bf.LOWER(args...)
	case "TRIM":
		return bf.TRIM(args...)
	case "ABS":
		return bf.ABS(args...)
	case "ROUND":
		return bf.ROUND(args...)
	case "FLOOR":
		return bf.FLOOR(args...)
	case "CEILING":
		return bf.CEILING(args...)
	case "SQRT":
		return bf.SQRT(args...)
	case "POWER":
		return bf.POWER(args...)
	case "MOD":
		return bf.MOD(args...)
	case "PI":
		return bf.PI(args...)
	case "NOW":
		return bf.NOW(args...)
	case "TODAY":
		return bf.TODAY(args...)
	case "RAND":
		return bf.RAND(args...)
	case "MEAN":
		return bf.MEAN(args...)
	case "STDEV":
		return bf.STDEV(args...)
	case "VARIANCE":
		return bf.VARIANCE(args...)
	case "PERCENTILE":
		return bf.PERCENTILE(args...)
	case "SAMPLE":
		return bf.SAMPLE(args...)
	case "TOSAMPLES":
		return bf.TOSAMPLES(args...)
	case "IFERROR":
		return bf.IFERROR(args...)
	case "IFNA":
		return bf.IFNA(args...)
	case "IFS":
		return bf.IFS(args...)
	case "CHOOSE":
		return bf.CHOOSE(args...)
	case "SWITCH":
		return bf.SWITCH(args...)
	case "XOR":
		return bf.XOR(args...)
	case "LEFT":
		return bf.LEFT(args...)
	case "RIGHT":
		return bf.RIGHT(args...)
	case "MID":
		return bf.MID(args...)
	case "PROPER":
		return bf.PROPER(args...)
	case "CLEAN":
		return bf.CLEAN(args...)
	case "REPT":
		return bf.REPT(args...)
	case "SEARCH":
		return bf.SEARCH(args...)
	case "FIND":
		return bf.FIND(args...)
	case "SUBSTITUTE":
		return bf.SUBSTITUTE(args...)
	case "T":
		return bf.T(args...)
	case "EXACT":
		return bf.EXACT(args...)
	case "CHAR":
		return bf.CHAR(args...)
	case "UNICHAR":
		return bf.UNICHAR(args...)
	case "DELTA":
		return bf.DELTA(args...)
	case "INT":
		return bf.INT(args...)
	case "ROUNDUP":
		return bf.ROUNDUP(args...)
	case "ROUNDDOWN":
		return bf.ROUNDDOWN(args...)
	case "EVEN":
		return bf.EVEN(args...)
	case "ODD":
		return bf.ODD(args...)
	case "CEILING.MATH":
		return bf.CEILINGMATH(args...)
	case "CEILING.PRECISE":
		return bf.CEILINGPRECISE(args...)
	case "FLOOR.MATH":
		return bf.FLOORMATH(args...)
	case "FLOOR.PRECISE":
		return bf.FLOORPRECISE(args...)
	case "SQRTPI":
		return bf.SQRTPI(args...)
	case "RADIANS":
		return bf.RADIANS(args...)
	case "DEGREES":
		return bf.DEGREES(args...)
	case "BITAND":
		return bf.BITAND(args...)
	case "BITOR":
		return bf.BITOR(args...)
	case "BITXOR":
		return bf.BITXOR(args...)
	case "RANDBETWEEN":
		return bf.RANDBETWEEN(args...)
	case "ACOS":
		return bf.trig1("ACOS", math.Acos, args...)
	case "ASIN":
		return bf.trig1("ASIN", math.Asin, args...)
	case "COS":
		return bf.trig1("COS", math.Cos, args...)
	case "SIN":
		return bf.trig1("SIN", math.Sin, args...)
	case "TAN":
		return bf.trig1("TAN", math.Tan, args...)
	case "ATAN":
		return bf.trig1("ATAN", math.Atan, args...)
	case "ATAN2":
		return bf.ATAN2(args...)
	case "COT":
		return bf.trig1("COT", func(x float64) float64 { return 1 / math.Tan(x) }, args...)
	case "SEC":
		return bf.trig1("SEC", func(x float64) float64 { return 1 / math.Cos(x) }, args...)
	case "CSC":
		return bf.trig1("CSC", func(x float64) float64 { return 1 / math.Sin(x) }, args...)
	case "SINH":
		return bf.trig1("SINH", math.Sinh, args...)
	case "COSH":
		return bf.trig1("COSH", math.Cosh, args...)
	case "TANH":
		return bf.trig1("TANH", math.Tanh, args...)
	case "COTH":
		return bf.trig1("COTH", func(x float64) float64 { return 1 / math.Tanh(x) }, args...)
	case "SECH":
		return bf.trig1("SECH", func(x float64) float64 { return 1 / math.Cosh(x) }, args...)
	case "CSCH":
		return bf.trig1("CSCH", func(x float64) float64 { return 1 / math.Sinh(x) }, args...)
	case "ACOT":
		return bf.trig1("ACOT", func(x float64) float64 { return math.Pi/2 - math.Atan(x) }, args...)
	case "ASINH":
		return bf.trig1("ASINH", math.Asinh, args...)
	case "ACOSH":
		return bf.trig1("ACOSH", math.Acosh, args...)
	case "ATANH":
		return bf.trig1("ATANH", math.Atanh, args...)
	case "ACOTH":
		return bf.trig1("ACOTH", func(x float64) float64 { return math.Atanh(1 / x) }, args...)
	case "COUNTUNIQUE":
		return bf.COUNTUNIQUE(args...)
	default:
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
}

func (bf *BuiltInFunctions) SUM(args ...any) (Primitive, error) {
	sum := 0.0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					sum += num
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				sum += num
			}
		}
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded, nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...any) (Primitive, error) {
	sum := 0.0
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if value != nil {
					if num, ok := toNumber(value); ok && !math.IsNaN(num) {
						sum += num
						count++
					}
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				sum += num
				count++
			}
		}
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}

	return sum / float64(count), nil
}

func (bf *BuiltInFunctions) AVERAGEA(args ...any) (Primitive, error) {
	sum := 0.0
	count := 0

	// helper function to process a single value
	processValue := func(value Primitive) error {
		// nil values (empty cells) are ignored - only from Range iteration
		if value == nil {
			return nil
		}

		// errors propagate
		if err := checkForError(value); err != nil {
			return err
		}
		// AVERAGEA includes all non-empty values in the count but only
		// numeric values contribute to the sum
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			// TRUE = 1, FALSE = 0
			if v {
				sum += 1
			}
			count++
		case string:
			// text values count as 0 (don't affect sum) but do increase count
			count++
		}
		return nil
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := processValue(value); err != nil {
					return nil, err
				}
			}
		} else {
			// Direct args are never nil, process them directly
			if err := processValue(arg); err != nil {
				return nil, err
			}
		}
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "AVERAGEA has no values")
	}

	return sum / float64(count), nil
}

func (bf *BuiltInFunctions) COUNT(args ...any) (Primitive, error) {
	count := 0

	// helper function to check if a value should be counted
	// COUNT only counts numeric values
	shouldCount := func(value Primitive) bool {
		switch value.(type) {
		case float64:
			// only float64 numeric type is counted
			return true
		case bool:
			// booleans are NOT counted by COUNT (different from COUNTA)
			return false
		case string:
			// strings are NOT counted, even if they look like numbers
			return false
		case nil:
			// empty cells are not counted (only from Range iteration)
			return false
		case *SpreadsheetError:
			// errors are not counted
			return false
		default:
			return false
		}
	}

	for _, arg := range args {
		// Direct args that are errors should propagate
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				// COUNT doesn't propagate errors from Range values, just skips them
				if _, isErr := value.(*SpreadsheetError); !isErr && shouldCount(value) {
					count++
				}
			}
		} else {
			if shouldCount(arg) {
				count++
			}
		}
	}

	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTA(args ...any) (Primitive, error) {
	count := 0

	// COUNTA counts all non-empty values regardless of type. this includes:
	// numbers, text, booleans, and errors (errors are counted, not propagated).
	for _, arg := range args {
		// Direct args that are errors should propagate
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				// COUNTA counts errors as non-empty cells, doesn't propagate them
				// count everything except nil (empty cells)
				if value != nil {
					count++
				}
			}
		} else {
			// Direct args are never nil
			count++
		}
	}

	return float64(count), nil
}

func (bf *BuiltInFunctions) MAX(args ...any) (Primitive, error) {
	max := math.Inf(-1)
	hasValues := false

	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num > max {
						max = num
					}
					hasValues = true
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				if num > max {
					max = num
				}
				hasValues = true
			}
		}
	}

	if hasValues {
		return max, nil
	}
	return 0.0, nil
}

func (bf *BuiltInFunctions) MIN(args ...any) (Primitive, error) {
	min := math.Inf(1)
	hasValues := false

	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num < min {
						min = num
					}
					hasValues = true
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				if num < min {
					min = num
				}
				hasValues = true
			}
		}
	}

	if hasValues {
		return min, nil
	}
	return 0.0, nil
}

func (bf *BuiltInFunctions) MEDIAN(args ...any) (Primitive, error) {
	values := []float64{}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					values = append(values, num)
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				values = append(values, num)
			}
		}
	}

	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}

	// sort values
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			if values[j] < values[i] {
				values[i], values[j] = values[j], values[i]
			}
		}
	}

	mid := len(values) / 2
	if len(values)%2 == 0 {
		// even count: average of two middle values
		return (values[mid-1] + values[mid]) / 2, nil
	}
	// odd count: middle value
	return values[mid], nil
}

func (bf *BuiltInFunctions) MODE(args ...any) (Primitive, error) {
	frequencyMap := make(map[float64]int)

	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					frequencyMap[num]++
				}
			}
		} else {
			if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
				frequencyMap[num]++
			}
		}
	}

	if len(frequencyMap) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}

	// Find the maximum frequency
	maxFreq := 0
	for _, freq := range frequencyMap {
		if freq > maxFreq {
			maxFreq = freq
		}
	}

	// Collect all values with maximum frequency
	var modes []float64
	for value, freq := range frequencyMap {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}

	// If all values have the same frequency (no mode), return error
	if maxFreq == 1 && len(modes) == len(frequencyMap) {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}

	// Sort modes for deterministic behavior
	for i := 0; i < len(modes); i++ {
		for j := i + 1; j < len(modes); j++ {
			if modes[j] < modes[i] {
				modes[i], modes[j] = modes[j], modes[i]
			}
		}
	}

	// Return the smallest mode (Excel-compatible behavior for ties)
	return modes[0], nil
}

func (bf *BuiltInFunctions) IF(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}

	// Check for errors in condition before evaluating
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}

	condition := isTruthy(args[0])
	if condition {
		return args[1], nil
	}

	if len(args) == 3 {
		return args[2], nil
	}

	return false, nil
}

func (bf *BuiltInFunctions) AND(args ...any) (Primitive, error) {
	for _, arg := range args {
		// Check for errors before evaluating
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...any) (Primitive, error) {
	for _, arg := range args {
		// Check for errors before evaluating
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func (bf *BuiltInFunctions) NOT(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	// Check for errors before evaluating
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

func (bf *BuiltInFunctions) CONCATENATE(args ...any) (Primitive, error) {
	var result strings.Builder
	for _, arg := range args {
		// Check for errors before processing
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		result.WriteString(toString(arg))
	}
	return result.String(), nil
}

func (bf *BuiltInFunctions) LEN(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEN requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(len(toString(args[0]))), nil
}

func (bf *BuiltInFunctions) UPPER(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "UPPER requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToUpper(toString(args[0])), nil
}

func (bf *BuiltInFunctions) LOWER(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOWER requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToLower(toString(args[0])), nil
}

func (bf *BuiltInFunctions) TRIM(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TRIM requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.TrimSpace(toString(args[0])), nil
}

func (bf *BuiltInFunctions) ABS(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ABS requires a numeric argument")
	}
	return math.Abs(num), nil
}

func (bf *BuiltInFunctions) ROUND(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}

	// Check for errors in all arguments
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}

	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric first argument")
	}

	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric second argument")
		}
	}

	multiplier := math.Pow(10, places)
	return math.Round(num*multiplier) / multiplier, nil
}

func (bf *BuiltInFunctions) FLOOR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FLOOR requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FLOOR requires a numeric argument")
	}
	return math.Floor(num), nil
}

func (bf *BuiltInFunctions) CEILING(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CEILING requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CEILING requires a numeric argument")
	}
	return math.Ceil(num), nil
}

func (bf *BuiltInFunctions) SQRT(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SQRT requires exactly 1 argument")
	}
	// Check for errors before processing
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SQRT requires a numeric argument")
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func (bf *BuiltInFunctions) POWER(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	// Check for errors in all arguments
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	base, ok1 := toNumber(args[0])
	exp, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "POWER requires numeric arguments")
	}
	return math.Pow(base, exp), nil
}

func (bf *BuiltInFunctions) MOD(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	// Check for errors in all arguments
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	dividend, ok1 := toNumber(args[0])
	divisor, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return math.Mod(dividend, divisor), nil
}

func (bf *BuiltInFunctions) PI(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}

// Excel date/time constants
const (
	// Excel epoch: January 1, 1900 00:00:00 UTC in Unix milliseconds
	// Note: Excel incorrectly treats 1900 as a leap year, but we'll use the
	// standard calculation
	EXCEL_EPOCH_MS = -2209075200000 // corrected: December 30, 1899 00:00:00 UTC
	MS_PER_DAY     = 86400000       // milliseconds in a day
)

func (bf *BuiltInFunctions) NOW(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOW takes no arguments")
	}
	// return current time as Excel serial number (days since Excel epoch)
	now := bf.clock.Now()
	diffMs := float64(now.UnixMilli() - EXCEL_EPOCH_MS)
	return diffMs / MS_PER_DAY, nil
}

func (bf *BuiltInFunctions) TODAY(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TODAY takes no arguments")
	}
	now := bf.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	diffMs := float64(midnight.UnixMilli() - EXCEL_EPOCH_MS)
	return math.Floor(diffMs / MS_PER_DAY), nil
}

func (bf *BuiltInFunctions) RAND(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RAND takes no arguments")
	}
	return bf.rng.Float64(), nil
}

// asDistribution extracts a Distribution argument, rejecting anything that
// isn't one - the uncertainty-aware builtins only make sense given an
// uncertain operand.
func asDistribution(arg Primitive) (Distribution, error) {
	if err := checkForError(arg); err != nil {
		return Distribution{}, err
	}
	d, ok := arg.(Distribution)
	if !ok {
		return Distribution{}, NewSpreadsheetError(ErrorCodeValue, "expected a distribution")
	}
	return d, nil
}

// MEAN returns a distribution's mean, computed analytically rather than by
// sampling where a closed form exists.
func (bf *BuiltInFunctions) MEAN(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MEAN takes exactly one argument")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	return d.MeanValue()
}

// STDEV returns a distribution's standard deviation, drawing a sample
// vector for the other families (Uniform, Sampled, CI).
func (bf *BuiltInFunctions) STDEV(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "STDEV takes exactly one argument")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case DistGaussian:
		return d.StdDev, nil
	case DistLogNormal:
		s2 := d.StdDev * d.StdDev
		return math.Sqrt((math.Exp(s2) - 1) * math.Exp(2*d.Mean+s2)), nil
	}
	samples, err := d.Samples(bf.sampleSize, bf.rng)
	if err != nil {
		return nil, err
	}
	_, stdDev, _ := Refit(samples)
	return stdDev, nil
}

// VARIANCE returns a distribution's variance.
func (bf *BuiltInFunctions) VARIANCE(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VARIANCE takes exactly one argument")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case DistGaussian:
		return d.StdDev * d.StdDev, nil
	case DistLogNormal:
		s2 := d.StdDev * d.StdDev
		return (math.Exp(s2) - 1) * math.Exp(2*d.Mean+s2), nil
	}
	samples, err := d.Samples(bf.sampleSize, bf.rng)
	if err != nil {
		return nil, err
	}
	_, _, variance := Refit(samples)
	return variance, nil
}

// PERCENTILE returns the p-th percentile (0-100) of a distribution's
// sample vector.
func (bf *BuiltInFunctions) PERCENTILE(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PERCENTILE takes exactly two arguments")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	p, ok := toNumber(args[1])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "percentile must be numeric")
	}
	samples, err := d.Samples(bf.sampleSize, bf.rng)
	if err != nil {
		return nil, err
	}
	return Percentile(samples, p)
}

// SAMPLE draws one value from a distribution, a fresh Monte Carlo draw
// each time it is called - callers wanting the full sample vector should
// use TOSAMPLES instead.
func (bf *BuiltInFunctions) SAMPLE(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SAMPLE takes exactly one argument")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	samples, err := d.Samples(1, bf.rng)
	if err != nil {
		return nil, err
	}
	return samples[0], nil
}

// TOSAMPLES materializes a distribution's full sample vector as a Sampled
// distribution, pinning it in place so downstream arithmetic reuses this
// exact draw instead of resampling.
func (bf *BuiltInFunctions) TOSAMPLES(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TOSAMPLES takes exactly one argument")
	}
	d, err := asDistribution(args[0])
	if err != nil {
		return nil, err
	}
	samples, err := d.Samples(bf.sampleSize, bf.rng)
	if err != nil {
		return nil, err
	}
	return NewSampled(samples), nil
}

// IFERROR returns its second argument when the first is any error, else
// passes the first argument through unchanged.
func (bf *BuiltInFunctions) IFERROR(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFERROR requires exactly 2 arguments")
	}
	if _, isErr := args[0].(*SpreadsheetError); isErr {
		return args[1], nil
	}
	return args[0], nil
}

// IFNA returns its second argument only when the first is specifically
// #N/A; other errors propagate rather than being swallowed.
func (bf *BuiltInFunctions) IFNA(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFNA requires exactly 2 arguments")
	}
	if errVal, isErr := args[0].(*SpreadsheetError); isErr {
		if errVal.ErrorCode == ErrorCodeNA {
			return args[1], nil
		}
		return nil, errVal
	}
	return args[0], nil
}

// IFS evaluates condition/value pairs in order and returns the value for
// the first truthy condition, or #N/A if none match.
func (bf *BuiltInFunctions) IFS(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFS requires an even number of arguments")
	}
	for i := 0; i < len(args); i += 2 {
		if err := checkForError(args[i]); err != nil {
			return nil, err
		}
		if isTruthy(args[i]) {
			return args[i+1], nil
		}
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "IFS: no condition matched")
}

// CHOOSE returns the 1-indexed value among its remaining arguments.
func (bf *BuiltInFunctions) CHOOSE(args ...any) (Primitive, error) {
	if len(args) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CHOOSE requires at least 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	idx, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CHOOSE requires a numeric index")
	}
	i := int(idx)
	if i < 1 || i > len(args)-1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CHOOSE index out of range")
	}
	return args[i], nil
}

// SWITCH compares its first argument against each subsequent value/result
// pair, returning the matching result, a trailing default, or #N/A.
func (bf *BuiltInFunctions) SWITCH(args ...any) (Primitive, error) {
	if len(args) < 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SWITCH requires at least 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	expr := args[0]
	i := 1
	for ; i+1 < len(args); i += 2 {
		if switchMatches(expr, args[i], bf.cfg) {
			return args[i+1], nil
		}
	}
	if i < len(args) {
		return args[i], nil
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "SWITCH: no match")
}

// switchMatches compares SWITCH's probe value against a candidate,
// comparing numerically when both sides are numeric and as folded text
// otherwise.
func switchMatches(probe, candidate Primitive, cfg *Config) bool {
	if pn, ok := toNumber(probe); ok {
		if cn, ok := toNumber(candidate); ok {
			return pn == cn
		}
	}
	return textEquals(toString(probe), toString(candidate), cfg)
}

// XOR returns true if an odd number of its arguments are truthy.
func (bf *BuiltInFunctions) XOR(args ...any) (Primitive, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "XOR requires at least 1 argument")
	}
	result := false
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			result = !result
		}
	}
	return result, nil
}

// LEFT returns the leftmost n characters of text (default 1).
func (bf *BuiltInFunctions) LEFT(args ...any) (Primitive, error) {
	text, n, err := textAndCount(args, 1)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n]), nil
}

// RIGHT returns the rightmost n characters of text (default 1).
func (bf *BuiltInFunctions) RIGHT(args ...any) (Primitive, error) {
	text, n, err := textAndCount(args, 1)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:]), nil
}

// textAndCount extracts LEFT/RIGHT's (text, count) arguments, defaulting
// count when omitted and rejecting a negative count.
func textAndCount(args []any, def int) (string, int, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", 0, NewSpreadsheetError(ErrorCodeNA, "requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return "", 0, err
		}
	}
	n := def
	if len(args) == 2 {
		num, ok := toNumber(args[1])
		if !ok {
			return "", 0, NewSpreadsheetError(ErrorCodeValue, "count must be numeric")
		}
		n = int(num)
	}
	if n < 0 {
		return "", 0, NewSpreadsheetError(ErrorCodeValue, "count must be non-negative")
	}
	return toString(args[0]), n, nil
}

// MID returns a substring of text starting at the 1-based start position
// for length characters.
func (bf *BuiltInFunctions) MID(args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MID requires exactly 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	start, ok1 := toNumber(args[1])
	length, ok2 := toNumber(args[2])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID requires numeric start/length")
	}
	if start < 1 || length < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID requires start >= 1 and length >= 0")
	}
	runes := []rune(toString(args[0]))
	from := int(start) - 1
	if from >= len(runes) {
		return "", nil
	}
	to := from + int(length)
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to]), nil
}

// PROPER capitalizes the first letter of every word, lowercasing the rest.
func (bf *BuiltInFunctions) PROPER(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PROPER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	runes := []rune(toString(args[0]))
	startOfWord := true
	for i, r := range runes {
		switch {
		case !isLetter(r):
			startOfWord = true
		case startOfWord:
			runes[i] = unicode.ToUpper(r)
			startOfWord = false
		default:
			runes[i] = unicode.ToLower(r)
		}
	}
	return string(runes), nil
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

// CLEAN strips non-printable ASCII control characters from text.
func (bf *BuiltInFunctions) CLEAN(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CLEAN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, r := range toString(args[0]) {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// REPT repeats text n times.
func (bf *BuiltInFunctions) REPT(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "REPT requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	n, ok := toNumber(args[1])
	if !ok || n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPT requires a non-negative numeric count")
	}
	return strings.Repeat(toString(args[0]), int(n)), nil
}

// SEARCH finds find's 1-based position within within, starting at the
// optional 1-based start position, case- and accent-insensitive per cfg.
func (bf *BuiltInFunctions) SEARCH(args ...any) (Primitive, error) {
	return bf.findAt("SEARCH", args, true)
}

// FIND finds find's 1-based position within within, always case- and
// accent-sensitive regardless of cfg.
func (bf *BuiltInFunctions) FIND(args ...any) (Primitive, error) {
	return bf.findAt("FIND", args, false)
}

func (bf *BuiltInFunctions) findAt(name string, args []any, folded bool) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires 2 or 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	find := toString(args[0])
	within := toString(args[1])
	start := 1
	if len(args) == 3 {
		n, ok := toNumber(args[2])
		if !ok || n < 1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a start position >= 1")
		}
		start = int(n)
	}
	runes := []rune(within)
	if start-1 > len(runes) {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+": start beyond text length")
	}
	remainder := string(runes[start-1:])
	cfg := bf.cfg
	if !folded {
		cfg = &Config{CaseSensitive: true, AccentSensitive: true}
	}
	idx := textIndex(remainder, find, cfg)
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+": text not found")
	}
	return float64(start + idx), nil
}

// SUBSTITUTE replaces occurrences of old with new in text, every occurrence
// by default or only the instance-th one when given.
func (bf *BuiltInFunctions) SUBSTITUTE(args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SUBSTITUTE requires 3 or 4 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	text := toString(args[0])
	old := toString(args[1])
	new := toString(args[2])
	if old == "" {
		return text, nil
	}
	if len(args) == 3 {
		return strings.ReplaceAll(text, old, new), nil
	}
	instance, ok := toNumber(args[3])
	if !ok || instance < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SUBSTITUTE instance must be >= 1")
	}
	parts := strings.Split(text, old)
	if int(instance) >= len(parts) {
		return text, nil
	}
	idx := int(instance)
	return strings.Join(parts[:idx], old) + new + strings.Join(parts[idx:], old), nil
}

// T returns its argument unchanged if it is text, else an empty string.
func (bf *BuiltInFunctions) T(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "T requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	return "", nil
}

// EXACT compares two values as literal, case- and accent-sensitive text,
// regardless of the engine's configured text-matching flags.
func (bf *BuiltInFunctions) EXACT(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "EXACT requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	return toString(args[0]) == toString(args[1]), nil
}

// CHAR converts a character code (1-255) to its single-character string.
func (bf *BuiltInFunctions) CHAR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CHAR requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	n, ok := toNumber(args[0])
	if !ok || n != math.Trunc(n) || n < 1 || n >= 256 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CHAR requires an integer in [1, 256)")
	}
	return string(rune(int(n))), nil
}

// UNICHAR converts a Unicode code point (1 to 0x10FFFF) to its string form.
func (bf *BuiltInFunctions) UNICHAR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "UNICHAR requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	n, ok := toNumber(args[0])
	if !ok || n != math.Trunc(n) || n < 1 || n >= 1_114_112 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "UNICHAR requires an integer in [1, 1114112)")
	}
	return string(rune(int(n))), nil
}

// DELTA returns 1 if its two numbers (second defaults to 0) are equal.
func (bf *BuiltInFunctions) DELTA(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DELTA requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	a, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DELTA requires numeric arguments")
	}
	b := 0.0
	if len(args) == 2 {
		b, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "DELTA requires numeric arguments")
		}
	}
	if a == b {
		return 1.0, nil
	}
	return 0.0, nil
}

// INT truncates toward negative infinity.
func (bf *BuiltInFunctions) INT(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	n, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INT requires a numeric argument")
	}
	return math.Floor(n), nil
}

// roundAt rounds num to the given number of decimal places using fn to
// round the scaled value (away from zero for ROUNDUP, toward zero for
// ROUNDDOWN).
func roundAt(num, places float64, fn func(float64) float64) float64 {
	multiplier := math.Pow(10, places)
	return fn(num*multiplier) / multiplier
}

// ROUNDUP rounds away from zero to the given number of decimal places.
func (bf *BuiltInFunctions) ROUNDUP(args ...any) (Primitive, error) {
	num, places, err := bf.numAndPlaces("ROUNDUP", args)
	if err != nil {
		return nil, err
	}
	sign := 1.0
	if num < 0 {
		sign = -1.0
	}
	return sign * roundAt(math.Abs(num), places, math.Ceil), nil
}

// ROUNDDOWN truncates toward zero to the given number of decimal places.
func (bf *BuiltInFunctions) ROUNDDOWN(args ...any) (Primitive, error) {
	num, places, err := bf.numAndPlaces("ROUNDDOWN", args)
	if err != nil {
		return nil, err
	}
	sign := 1.0
	if num < 0 {
		sign = -1.0
	}
	return sign * roundAt(math.Abs(num), places, math.Floor), nil
}

func (bf *BuiltInFunctions) numAndPlaces(name string, args []any) (float64, float64, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, 0, NewSpreadsheetError(ErrorCodeNA, name+" requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return 0, 0, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return 0, 0, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric first argument")
	}
	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return 0, 0, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric second argument")
		}
	}
	return num, places, nil
}

// EVEN rounds away from zero to the nearest even integer.
func (bf *BuiltInFunctions) EVEN(args ...any) (Primitive, error) {
	return bf.roundToParity("EVEN", args, 0)
}

// ODD rounds away from zero to the nearest odd integer.
func (bf *BuiltInFunctions) ODD(args ...any) (Primitive, error) {
	return bf.roundToParity("ODD", args, 1)
}

func (bf *BuiltInFunctions) roundToParity(name string, args []any, parity int) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric argument")
	}
	sign := 1.0
	if num < 0 {
		sign = -1.0
	}
	abs := math.Abs(num)
	rounded := math.Ceil(abs)
	if int64(rounded)%2 != int64(parity) {
		rounded++
	}
	return sign * rounded, nil
}

// CEILINGMATH implements CEILING.MATH(number, [significance], [mode]).
func (bf *BuiltInFunctions) CEILINGMATH(args ...any) (Primitive, error) {
	return bf.ceilingFloorMath("CEILING.MATH", args, math.Ceil)
}

// FLOORMATH implements FLOOR.MATH(number, [significance], [mode]).
func (bf *BuiltInFunctions) FLOORMATH(args ...any) (Primitive, error) {
	return bf.ceilingFloorMath("FLOOR.MATH", args, math.Floor)
}

func (bf *BuiltInFunctions) ceilingFloorMath(name string, args []any, roundOut func(float64) float64) (Primitive, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires 1 to 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric first argument")
	}
	sig := 1.0
	if num < 0 {
		sig = -1.0
	}
	if len(args) >= 2 {
		sig, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric significance")
		}
	}
	mode := 0.0
	if len(args) == 3 {
		mode, ok = toNumber(args[2])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric mode")
		}
	}
	if sig == 0 {
		return 0.0, nil
	}
	if num < 0 && mode != 0 {
		// mode != 0 rounds negative numbers away from zero instead of toward it
		return -roundOut(-num/math.Abs(sig)) * math.Abs(sig), nil
	}
	return roundOut(num/sig) * sig, nil
}

// CEILINGPRECISE implements CEILING.PRECISE(number, [significance]) - the
// sign of significance is ignored, the result always rounds toward +inf.
func (bf *BuiltInFunctions) CEILINGPRECISE(args ...any) (Primitive, error) {
	return bf.ceilingFloorPrecise("CEILING.PRECISE", args, math.Ceil)
}

// FLOORPRECISE implements FLOOR.PRECISE(number, [significance]) - the sign
// of significance is ignored, the result always rounds toward -inf.
func (bf *BuiltInFunctions) FLOORPRECISE(args ...any) (Primitive, error) {
	return bf.ceilingFloorPrecise("FLOOR.PRECISE", args, math.Floor)
}

func (bf *BuiltInFunctions) ceilingFloorPrecise(name string, args []any, roundOut func(float64) float64) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric first argument")
	}
	sig := 1.0
	if len(args) == 2 {
		sig, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric significance")
		}
	}
	sig = math.Abs(sig)
	if sig == 0 {
		return 0.0, nil
	}
	return roundOut(num/sig) * sig, nil
}

// SQRTPI returns sqrt(number * pi).
func (bf *BuiltInFunctions) SQRTPI(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SQRTPI requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SQRTPI requires a numeric argument")
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRTPI requires a non-negative argument")
	}
	return math.Sqrt(num * math.Pi), nil
}

// RADIANS converts degrees to radians.
func (bf *BuiltInFunctions) RADIANS(args ...any) (Primitive, error) {
	n, err := bf.unary1("RADIANS", args)
	if err != nil {
		return nil, err
	}
	return n * math.Pi / 180, nil
}

// DEGREES converts radians to degrees.
func (bf *BuiltInFunctions) DEGREES(args ...any) (Primitive, error) {
	n, err := bf.unary1("DEGREES", args)
	if err != nil {
		return nil, err
	}
	return n * 180 / math.Pi, nil
}

func (bf *BuiltInFunctions) unary1(name string, args []any) (float64, error) {
	if len(args) != 1 {
		return 0, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return 0, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric argument")
	}
	return num, nil
}

// trig1 evaluates a single-argument trig/hyperbolic function, rejecting
// non-finite results as #NUM!.
func (bf *BuiltInFunctions) trig1(name string, fn func(float64) float64, args ...any) (Primitive, error) {
	num, err := bf.unary1(name, args)
	if err != nil {
		return nil, err
	}
	result := fn(num)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, NewSpreadsheetError(ErrorCodeNum, name+" is undefined for this input")
	}
	return result, nil
}

// ATAN2 returns atan2(y, x) - note the Excel argument order is (x, y).
func (bf *BuiltInFunctions) ATAN2(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ATAN2 requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	x, ok1 := toNumber(args[0])
	y, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ATAN2 requires numeric arguments")
	}
	if x == 0 && y == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "ATAN2(0, 0) is undefined")
	}
	return math.Atan2(y, x), nil
}

func toBitwiseInt(v Primitive) (int64, bool) {
	num, ok := toNumber(v)
	if !ok || num < 0 || num != math.Trunc(num) {
		return 0, false
	}
	return int64(num), true
}

// BITAND returns the bitwise AND of two non-negative integers.
func (bf *BuiltInFunctions) BITAND(args ...any) (Primitive, error) {
	return bf.bitwise2("BITAND", args, func(a, b int64) int64 { return a & b })
}

// BITOR returns the bitwise OR of two non-negative integers.
func (bf *BuiltInFunctions) BITOR(args ...any) (Primitive, error) {
	return bf.bitwise2("BITOR", args, func(a, b int64) int64 { return a | b })
}

// BITXOR returns the bitwise XOR of two non-negative integers.
func (bf *BuiltInFunctions) BITXOR(args ...any) (Primitive, error) {
	return bf.bitwise2("BITXOR", args, func(a, b int64) int64 { return a ^ b })
}

func (bf *BuiltInFunctions) bitwise2(name string, args []any, fn func(a, b int64) int64) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	a, ok1 := toBitwiseInt(args[0])
	b, ok2 := toBitwiseInt(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeNum, name+" requires non-negative integer arguments")
	}
	return float64(fn(a, b)), nil
}

// RANDBETWEEN returns a uniformly distributed integer in [l, u].
func (bf *BuiltInFunctions) RANDBETWEEN(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RANDBETWEEN requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	l, ok1 := toNumber(args[0])
	u, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RANDBETWEEN requires numeric arguments")
	}
	lower := math.Ceil(l)
	upper := math.Floor(u)
	if upper < lower {
		upper = lower
	}
	span := upper + 1 - lower
	return lower + math.Floor(bf.rng.Float64()*span), nil
}

// COUNTUNIQUE counts the number of distinct non-empty values across its
// arguments and ranges.
func (bf *BuiltInFunctions) COUNTUNIQUE(args ...any) (Primitive, error) {
	seen := make(map[string]struct{})
	process := func(v Primitive) error {
		if err := checkForError(v); err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		if s, ok := v.(string); ok {
			v = foldText(s, bf.cfg)
		}
		seen[fmt.Sprintf("%T:%v", v, v)] = struct{}{}
		return nil
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := process(value); err != nil {
					return nil, err
				}
			}
		} else if err := process(arg); err != nil {
			return nil, err
		}
	}
	return float64(len(seen)), nil
}

func (r RangeAddress) Contains(worksheetID uint32, row, col uint32) bool {
	return r.WorksheetID == worksheetID &&
		row >= r.StartRow && row <= r.EndRow &&
		col >= r.StartColumn && col <= r.EndColumn
}

// isVolatileFunction returns true if the function should trigger recalculation
// on every Calculate() call
func isVolatileFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND", "RANDBETWEEN", "SAMPLE":
		return true
	default:
		return false
	}
}

// toNumber converts value to number, returning ok=false if conversion fails.
// A Distribution collapses to its mean (MeanValue: analytic where a closed
// form exists, the sample mean otherwise), so legacy aggregates like
// SUM/AVERAGE still produce a sensible scalar when they encounter an
// uncertain cell.
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case Distribution:
		mean, err := v.MeanValue()
		if err != nil {
			return 0, false
		}
		return mean, true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(v, 64) // Parse as 64-bit float
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to string
func toString(value Primitive) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}
