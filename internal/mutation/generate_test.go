package mutation

import (
	"errors"
	"math"
	"testing"

	"evoloop/internal/detect"
)

func testRules() RuleSet {
	return RuleSet{
		{Field: "a", Threshold: 0.05, Kind: KindTune, Target: "gain"},
		{Field: "b", Threshold: 0.20, Kind: KindRewrite, Target: "old", Note: "new"},
	}
}

func report(delta, signed map[string]float64, significant bool) detect.Report {
	return detect.Report{Delta: delta, Signed: signed, Significant: significant}
}

func TestGenerateSingleDirective(t *testing.T) {
	rep := report(
		map[string]float64{"a": 0.15, "b": 0.0},
		map[string]float64{"a": 0.15, "b": 0.0},
		true,
	)

	dirs := Generate(rep, testRules())

	if len(dirs) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(dirs))
	}
	if dirs[0].Kind != KindTune || dirs[0].Target != "gain" {
		t.Fatalf("unexpected directive %+v", dirs[0])
	}
	if math.Abs(dirs[0].Intensity-0.15) > 1e-9 {
		t.Fatalf("expected intensity 0.15, got %f", dirs[0].Intensity)
	}
	if dirs[0].Inverse {
		t.Fatal("positive delta must not be inverse")
	}
}

func TestSignificantReportCanYieldNoDirectives(t *testing.T) {
	// Aggregate crossed the global threshold but no field crossed its own.
	rep := report(
		map[string]float64{"a": 0.04, "b": 0.10},
		map[string]float64{"a": 0.04, "b": 0.10},
		true,
	)

	dirs := Generate(rep, testRules())

	if len(dirs) != 0 {
		t.Fatalf("expected no directives, got %d", len(dirs))
	}
}

func TestDeltaAtThresholdDoesNotFire(t *testing.T) {
	rep := report(
		map[string]float64{"a": 0.05},
		map[string]float64{"a": 0.05},
		false,
	)

	dirs := Generate(rep, testRules())

	if len(dirs) != 0 {
		t.Fatalf("delta equal to threshold must not fire, got %d directives", len(dirs))
	}
}

func TestGenerateRuleOrder(t *testing.T) {
	rep := report(
		map[string]float64{"a": 1.0, "b": 1.0},
		map[string]float64{"a": 1.0, "b": -1.0},
		true,
	)

	dirs := Generate(rep, testRules())

	if len(dirs) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(dirs))
	}
	if dirs[0].Target != "gain" || dirs[1].Target != "old" {
		t.Fatalf("directives out of rule order: %+v", dirs)
	}
	if !dirs[1].Inverse {
		t.Fatal("negative signed delta must be inverse")
	}
}

func TestUnknownReportFieldIgnored(t *testing.T) {
	rep := report(
		map[string]float64{"c": 9.0},
		map[string]float64{"c": 9.0},
		true,
	)

	dirs := Generate(rep, testRules())

	if len(dirs) != 0 {
		t.Fatalf("unmapped field must be ignored, got %d directives", len(dirs))
	}
}

func TestValidateRejectsDuplicateField(t *testing.T) {
	rs := RuleSet{
		{Field: "a", Kind: KindTune},
		{Field: "a", Kind: KindTune},
	}
	if err := rs.Validate(); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	rs := RuleSet{{Field: "a", Kind: Kind("explode")}}
	if err := rs.Validate(); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateRejectsNegativeThreshold(t *testing.T) {
	rs := RuleSet{{Field: "a", Threshold: -0.1, Kind: KindTune}}
	if err := rs.Validate(); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateAcceptsGoodRules(t *testing.T) {
	if err := testRules().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
