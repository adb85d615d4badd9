package spreadsheet

import (
	"math"
	"testing"
)

func TestRecognizeDistributionLiteral(t *testing.T) {
	cases := []struct {
		name string
		text string
		kind DistributionKind
	}{
		{"gaussian", "N(μ=3.5, σ²=0.25)", DistGaussian},
		{"sampled", "S(μ=1, σ²=2)", DistSampled},
		{"ci bracketed", "CI[10, 20]", DistConfidenceInterval},
		{"plain bracketed", "[10, 20]", DistConfidenceInterval},
		{"range to lowercase", "10 to 20", DistConfidenceInterval},
		{"range to mixed case", "10 To 20", DistConfidenceInterval},
		{"lognormal lowercase", "ln(0, 0.25)", DistLogNormal},
		{"lognormal uppercase", "LN(0, 0.25)", DistLogNormal},
		{"uniform lowercase", "u(0, 1)", DistUniform},
		{"uniform uppercase", "U(0, 1)", DistUniform},
		{"legacy confidence", "P95[10, 20]", DistConfidenceInterval},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			node, matched := recognizeDistributionLiteral(tt.text)
			if !matched {
				t.Fatalf("%q: expected a match, got none", tt.text)
			}
			s := NewSpreadsheet()
			val, err := node.Eval(s)
			if err != nil {
				t.Fatalf("%q: Eval failed: %v", tt.text, err)
			}
			dist, ok := val.(Distribution)
			if !ok {
				t.Fatalf("%q: Eval returned %T, want Distribution", tt.text, val)
			}
			if dist.Kind != tt.kind {
				t.Errorf("%q: Kind = %v, want %v", tt.text, dist.Kind, tt.kind)
			}
		})
	}
}

func TestRecognizeDistributionLiteralRejectsNonMatches(t *testing.T) {
	cases := []string{
		"N(1)",          // single arg - the documented boundary case
		"hello world",   // plain string
		"=N(μ=1, σ²=2)", // formula text, not a literal - Set() never calls the recognizer on this
		"N(μ=1, σ²=2",   // missing closing paren
	}
	for _, text := range cases {
		if _, matched := recognizeDistributionLiteral(text); matched {
			t.Errorf("%q: expected no match", text)
		}
	}
}

func TestRecognizeDistributionLiteralLegacyConfidenceUsesGivenLevel(t *testing.T) {
	node, matched := recognizeDistributionLiteral("P95[10, 20]")
	if !matched {
		t.Fatal("expected a match")
	}
	ciNode, ok := node.(*ConfidenceIntervalLiteralNode)
	if !ok {
		t.Fatalf("got %T, want *ConfidenceIntervalLiteralNode", node)
	}
	if ciNode.Confidence != 95 {
		t.Errorf("Confidence = %v, want 95", ciNode.Confidence)
	}
}

func TestRecognizeDistributionLiteralDefaultConfidenceIsNinety(t *testing.T) {
	node, matched := recognizeDistributionLiteral("CI[10, 20]")
	if !matched {
		t.Fatal("expected a match")
	}
	ciNode, ok := node.(*ConfidenceIntervalLiteralNode)
	if !ok {
		t.Fatalf("got %T, want *ConfidenceIntervalLiteralNode", node)
	}
	if ciNode.Confidence != 90 {
		t.Errorf("Confidence = %v, want 90", ciNode.Confidence)
	}
}

func TestRecognizeErrorString(t *testing.T) {
	cases := map[string]ErrorCode{
		"#REF!":   ErrorCodeRef,
		"#VALUE!": ErrorCodeValue,
		"#DIV/0!": ErrorCodeDiv0,
		"#N/A":    ErrorCodeNA,
		"#NAME?":  ErrorCodeName,
	}
	for text, code := range cases {
		errVal, matched := recognizeErrorString(text)
		if !matched {
			t.Errorf("%q: expected a match", text)
			continue
		}
		if errVal.ErrorCode != code {
			t.Errorf("%q: ErrorCode = %v, want %v", text, errVal.ErrorCode, code)
		}
	}

	if _, matched := recognizeErrorString("not an error"); matched {
		t.Error("expected no match for plain text")
	}
}

func TestSetCellWithDistributionLiteral(t *testing.T) {
	NewSpreadsheetTestCase(t, "gaussian literal becomes a distribution on Set").
		Set("Sheet1!A1", "N(μ=10, σ²=4)").
		RunAndAssertNoError().
		AssertCellFn("Sheet1!A1", func(val Primitive, t *testing.T) {
			d, ok := val.(Distribution)
			if !ok {
				t.Fatalf("A1 = %T, want Distribution", val)
			}
			if d.Kind != DistGaussian {
				t.Errorf("Kind = %v, want Gaussian", d.Kind)
			}
			if d.Mean != 10 {
				t.Errorf("Mean = %v, want 10", d.Mean)
			}
			if math.Abs(d.StdDev-2) > 1e-9 {
				t.Errorf("StdDev = %v, want 2 (sqrt of variance 4)", d.StdDev)
			}
		}).
		End()

	NewSpreadsheetTestCase(t, "a single-argument N(1) stays a plain string").
		Set("Sheet1!A1", "N(1)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", "N(1)").
		End()

	NewSpreadsheetTestCase(t, "leading apostrophe escapes literal interpretation").
		Set("Sheet1!A1", "'N(μ=10, σ²=4)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", "N(μ=10, σ²=4)").
		End()

	NewSpreadsheetTestCase(t, "error code string becomes a SpreadsheetError").
		Set("Sheet1!A1", "#REF!").
		RunAndAssertNoError().
		AssertCellErr("Sheet1!A1", ErrorCodeRef).
		End()
}

func TestSetCellWithSampledLiteralMaterializesSamples(t *testing.T) {
	NewSpreadsheetTestCase(t, "sampled literal generates concrete samples").
		Set("Sheet1!A1", "S(μ=5, σ²=1)").
		RunAndAssertNoError().
		AssertCellFn("Sheet1!A1", func(val Primitive, t *testing.T) {
			d, ok := val.(Distribution)
			if !ok {
				t.Fatalf("A1 = %T, want Distribution", val)
			}
			if d.Kind != DistSampled {
				t.Errorf("Kind = %v, want Sampled", d.Kind)
			}
			if len(d.Values) == 0 {
				t.Error("expected materialized sample values, got none")
			}
			mean, err := d.MeanValue()
			if err != nil {
				t.Fatalf("MeanValue failed: %v", err)
			}
			if math.Abs(mean-5) > 1 {
				t.Errorf("mean = %v, want close to 5", mean)
			}
		}).
		End()
}
