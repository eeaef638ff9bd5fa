package task

import (
	"testing"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/critic"
)

func TestTask_CanRetry(t *testing.T) {
	tsk := Task{RetryCount: critic.DefaultMaxRetries - 1}
	if !tsk.CanRetry() {
		t.Error("CanRetry() = false, want true below max retries")
	}
	tsk.RetryCount = critic.DefaultMaxRetries
	if tsk.CanRetry() {
		t.Error("CanRetry() = true, want false at max retries")
	}
}

func TestTask_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusDraft, false},
		{StatusAssigned, false},
		{StatusInProgress, false},
		{StatusDeliberating, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tsk := Task{Status: tt.status}
			if got := tsk.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() for %s = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestCriterionPayload_RoundTrip(t *testing.T) {
	criteria := []critic.AcceptanceCriterion{
		{Metric: "length_chars", Threshold: 100.0, Validator: critic.SpecialtyOutput, IsMandatory: true, Description: "long enough"},
		{Metric: "sql_syntax_valid", Threshold: true, Validator: critic.SpecialtyCode, IsMandatory: false},
	}
	payloads := toCriterionPayloads(criteria)
	if len(payloads) != 2 {
		t.Fatalf("len(payloads) = %d, want 2", len(payloads))
	}
	back := fromCriterionPayloads(payloads)
	if len(back) != len(criteria) {
		t.Fatalf("len(back) = %d, want %d", len(back), len(criteria))
	}
	for i := range criteria {
		if back[i].Metric != criteria[i].Metric || back[i].Validator != criteria[i].Validator || back[i].IsMandatory != criteria[i].IsMandatory {
			t.Errorf("round trip mismatch at %d: got %+v, want %+v", i, back[i], criteria[i])
		}
	}
}

func TestToResponse_NilSlicesNormalized(t *testing.T) {
	tsk := Task{ID: uuid.New(), Status: StatusDraft, Priority: PriorityNormal}
	resp := tsk.ToResponse()
	if resp.AssignedAgents == nil {
		t.Error("AssignedAgents should be an empty slice, not nil")
	}
	if resp.Plan == nil {
		t.Error("Plan should be an empty slice, not nil")
	}
	if resp.AcceptanceCriteria == nil {
		t.Error("AcceptanceCriteria should be an empty slice, not nil")
	}
	if len(resp.AssignedAgents) != 0 || len(resp.Plan) != 0 || len(resp.AcceptanceCriteria) != 0 {
		t.Error("expected all normalized slices to be empty")
	}
}

func TestToResponse_CanRetryReflectsTask(t *testing.T) {
	tsk := Task{ID: uuid.New(), RetryCount: critic.DefaultMaxRetries}
	resp := tsk.ToResponse()
	if resp.CanRetry {
		t.Error("CanRetry in response should be false at max retries")
	}
}

func TestApplicableSpecialties_DefaultsToOutputOnly(t *testing.T) {
	specialties := applicableSpecialties(nil)
	if len(specialties) != 1 || specialties[0] != critic.SpecialtyOutput {
		t.Errorf("applicableSpecialties(nil) = %v, want [OUTPUT]", specialties)
	}
}

func TestApplicableSpecialties_IncludesPlanAndCodeWhenTargeted(t *testing.T) {
	criteria := []critic.AcceptanceCriterion{
		{Metric: "plan_steps", Validator: critic.SpecialtyPlan},
		{Metric: "sql_syntax_valid", Validator: critic.SpecialtyCode},
	}
	specialties := applicableSpecialties(criteria)
	want := []critic.Specialty{critic.SpecialtyPlan, critic.SpecialtyCode, critic.SpecialtyOutput}
	if len(specialties) != len(want) {
		t.Fatalf("applicableSpecialties() = %v, want %v", specialties, want)
	}
	for i := range want {
		if specialties[i] != want[i] {
			t.Errorf("applicableSpecialties()[%d] = %v, want %v (order matters: PLAN before CODE before OUTPUT)", i, specialties[i], want[i])
		}
	}
}

func TestApplicableSpecialties_OutputAlwaysLast(t *testing.T) {
	criteria := []critic.AcceptanceCriterion{
		{Metric: "result_not_empty", Validator: critic.SpecialtyOutput},
		{Metric: "plan_steps", Validator: critic.SpecialtyPlan},
	}
	specialties := applicableSpecialties(criteria)
	if specialties[len(specialties)-1] != critic.SpecialtyOutput {
		t.Errorf("OUTPUT must always be last, got %v", specialties)
	}
	// OUTPUT must not be duplicated even though a criterion explicitly targets it.
	count := 0
	for _, s := range specialties {
		if s == critic.SpecialtyOutput {
			count++
		}
	}
	if count != 1 {
		t.Errorf("OUTPUT appeared %d times, want 1", count)
	}
}

func TestAppendUnique(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := appendUnique([]uuid.UUID{a}, b)
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}
	ids = appendUnique(ids, a)
	if len(ids) != 2 {
		t.Errorf("appendUnique should not duplicate an existing id, got %v", ids)
	}
}
