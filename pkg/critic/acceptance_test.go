package critic

import "testing"

func TestEvaluateCriteria_DispatchByMetricPrefix(t *testing.T) {
	tests := []struct {
		name       string
		criterion  AcceptanceCriterion
		content    string
		wantPassed bool
	}{
		{
			name:       "sql_syntax present",
			criterion:  AcceptanceCriterion{Metric: "sql_syntax_valid", Validator: SpecialtyCode},
			content:    "SELECT id FROM users WHERE active = true",
			wantPassed: true,
		},
		{
			name:       "sql_syntax absent",
			criterion:  AcceptanceCriterion{Metric: "sql_syntax_valid", Validator: SpecialtyCode},
			content:    "func main() {}",
			wantPassed: false,
		},
		{
			name:       "result_not_empty passes",
			criterion:  AcceptanceCriterion{Metric: "result_not_empty", Validator: SpecialtyOutput},
			content:    "done",
			wantPassed: true,
		},
		{
			name:       "result_not_empty fails on blank",
			criterion:  AcceptanceCriterion{Metric: "result_not_empty", Validator: SpecialtyOutput},
			content:    "   ",
			wantPassed: false,
		},
		{
			name:       "length_chars within range",
			criterion:  AcceptanceCriterion{Metric: "length_chars", Threshold: []any{5.0, 20.0}, Validator: SpecialtyOutput},
			content:    "hello world",
			wantPassed: true,
		},
		{
			name:       "length_chars below minimum",
			criterion:  AcceptanceCriterion{Metric: "length_chars", Threshold: 50.0, Validator: SpecialtyOutput},
			content:    "short",
			wantPassed: false,
		},
		{
			name:       "contains_ keyword found",
			criterion:  AcceptanceCriterion{Metric: "contains_success", Validator: SpecialtyOutput},
			content:    "the job finished with SUCCESS status",
			wantPassed: true,
		},
		{
			name:       "contains_ keyword missing",
			criterion:  AcceptanceCriterion{Metric: "contains_success", Validator: SpecialtyOutput},
			content:    "the job failed",
			wantPassed: false,
		},
		{
			name:       "unrecognized metric defers to AI",
			criterion:  AcceptanceCriterion{Metric: "semantic_tone", Validator: SpecialtyOutput},
			content:    "anything",
			wantPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := EvaluateCriteria([]AcceptanceCriterion{tt.criterion}, tt.content, tt.criterion.Validator)
			if len(results) != 1 {
				t.Fatalf("EvaluateCriteria() returned %d results, want 1", len(results))
			}
			if results[0].Passed != tt.wantPassed {
				t.Errorf("EvaluateCriteria() passed = %v (%s), want %v", results[0].Passed, results[0].Notes, tt.wantPassed)
			}
		})
	}
}

func TestEvaluateCriteria_SkipsOtherSpecialty(t *testing.T) {
	criteria := []AcceptanceCriterion{
		{Metric: "sql_syntax_valid", Validator: SpecialtyCode, IsMandatory: true},
	}
	results := EvaluateCriteria(criteria, "no sql here", SpecialtyOutput)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("criterion for a different specialty should be skipped-and-passed, got %+v", results)
	}
}

func TestAggregate_MandatoryFailureFlag(t *testing.T) {
	results := []CriterionResult{
		{Metric: "a", Passed: true},
		{Metric: "b", Passed: false, IsMandatory: true},
		{Metric: "c", Passed: false, IsMandatory: false},
	}
	agg := Aggregate(results)
	if agg.Total != 3 || agg.Passed != 1 || agg.Failed != 2 {
		t.Fatalf("Aggregate() = %+v, want Total=3 Passed=1 Failed=2", agg)
	}
	if agg.AllMandatoryPassed {
		t.Error("AllMandatoryPassed should be false when a mandatory criterion failed")
	}
	if len(agg.MandatoryFailures) != 1 || agg.MandatoryFailures[0] != "b" {
		t.Errorf("MandatoryFailures = %v, want [b]", agg.MandatoryFailures)
	}
}

func TestAggregate_AllPass(t *testing.T) {
	results := []CriterionResult{
		{Metric: "a", Passed: true, IsMandatory: true},
		{Metric: "b", Passed: true},
	}
	agg := Aggregate(results)
	if !agg.AllMandatoryPassed || agg.Failed != 0 {
		t.Fatalf("Aggregate() = %+v, want all passed", agg)
	}
}
