package spreadsheet

import (
	"regexp"
	"strconv"
	"strings"
)

// numPattern matches a signed decimal number as used inside distribution
// cell literals.
const numPattern = `(-?\d+(?:\.\d+)?)`

var (
	gaussianLiteralRe  = regexp.MustCompile(`^N\(\s*μ\s*=\s*` + numPattern + `\s*,\s*σ²\s*=\s*` + numPattern + `\s*\)$`)
	sampledLiteralRe   = regexp.MustCompile(`^S\(\s*μ\s*=\s*` + numPattern + `\s*,\s*σ²\s*=\s*` + numPattern + `\s*\)$`)
	ciBracketedRe      = regexp.MustCompile(`^CI\[\s*` + numPattern + `\s*,\s*` + numPattern + `\s*\]$`)
	plainBracketedRe   = regexp.MustCompile(`^\[\s*` + numPattern + `\s*,\s*` + numPattern + `\s*\]$`)
	rangeToRe          = regexp.MustCompile(`(?i)^` + numPattern + `\s*to\s*` + numPattern + `$`)
	logNormalRe        = regexp.MustCompile(`(?i)^LN\(\s*` + numPattern + `\s*,\s*` + numPattern + `\s*\)$`)
	uniformRe          = regexp.MustCompile(`(?i)^U\(\s*` + numPattern + `\s*,\s*` + numPattern + `\s*\)$`)
	legacyConfidenceRe = regexp.MustCompile(`^P` + numPattern + `\[\s*` + numPattern + `\s*,\s*` + numPattern + `\s*\]$`)
	errorStringRe      = regexp.MustCompile(`^#[A-Za-z0-9/]+[?!]?$`)
)

// errorTextToCode is the reverse of ErrorMapper, letting raw cell text like
// "#REF!" round-trip back into the ErrorCode it displays as.
var errorTextToCode = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(ErrorMapper))
	for code, text := range ErrorMapper {
		m[text] = code
	}
	return m
}()

// recognizeErrorString matches raw cell text against the error-code
// display pattern and returns the SpreadsheetError it denotes.
func recognizeErrorString(text string) (*SpreadsheetError, bool) {
	trimmed := strings.TrimSpace(text)
	if !errorStringRe.MatchString(trimmed) {
		return nil, false
	}
	code, ok := errorTextToCode[trimmed]
	if !ok {
		return nil, false
	}
	return NewSpreadsheetError(code, ""), true
}

// defaultCIConfidence is the confidence level (percent) implied by any cell
// literal form that does not name one explicitly (CI[..], [..], "a to b").
const defaultCIConfidence = 90.0

// recognizeDistributionLiteral matches raw, non-formula cell text against
// the distribution literal grammar and returns the AST node it denotes.
// Text that matches none of the forms is not a literal - the caller keeps
// it as a plain string value. N(1) (a single argument) falls through here
// since every pattern requires two comma-separated numeric arguments,
// matching the spec's "stays a string" boundary case.
func recognizeDistributionLiteral(text string) (ASTNode, bool) {
	trimmed := strings.TrimSpace(text)

	if m := gaussianLiteralRe.FindStringSubmatch(trimmed); m != nil {
		mean, variance := mustFloats(m[1], m[2])
		return &GaussianLiteralNode{Mean: mean, Variance: variance}, true
	}
	if m := sampledLiteralRe.FindStringSubmatch(trimmed); m != nil {
		mean, variance := mustFloats(m[1], m[2])
		return &SampledLiteralNode{Mean: mean, Variance: variance}, true
	}
	if m := logNormalRe.FindStringSubmatch(trimmed); m != nil {
		mean, variance := mustFloats(m[1], m[2])
		return &LogNormalLiteralNode{Mean: mean, Variance: variance}, true
	}
	if m := uniformRe.FindStringSubmatch(trimmed); m != nil {
		low, high := mustFloats(m[1], m[2])
		return &UniformLiteralNode{Low: low, High: high}, true
	}
	if m := ciBracketedRe.FindStringSubmatch(trimmed); m != nil {
		lo, hi := mustFloats(m[1], m[2])
		return &ConfidenceIntervalLiteralNode{Lower: lo, Upper: hi, Confidence: defaultCIConfidence, Interp: CIInterpAuto}, true
	}
	if m := plainBracketedRe.FindStringSubmatch(trimmed); m != nil {
		lo, hi := mustFloats(m[1], m[2])
		return &ConfidenceIntervalLiteralNode{Lower: lo, Upper: hi, Confidence: defaultCIConfidence, Interp: CIInterpAuto}, true
	}
	if m := rangeToRe.FindStringSubmatch(trimmed); m != nil {
		lo, hi := mustFloats(m[1], m[2])
		return &ConfidenceIntervalLiteralNode{Lower: lo, Upper: hi, Confidence: defaultCIConfidence, Interp: CIInterpAuto}, true
	}
	if m := legacyConfidenceRe.FindStringSubmatch(trimmed); m != nil {
		confidence, _ := strconv.ParseFloat(m[1], 64)
		lo, hi := mustFloats(m[2], m[3])
		return &ConfidenceIntervalLiteralNode{Lower: lo, Upper: hi, Confidence: confidence, Interp: CIInterpAuto}, true
	}

	return nil, false
}

// mustFloats parses two regex submatches known by construction to already
// be valid decimal numbers.
func mustFloats(a, b string) (float64, float64) {
	x, _ := strconv.ParseFloat(a, 64)
	y, _ := strconv.ParseFloat(b, 64)
	return x, y
}
