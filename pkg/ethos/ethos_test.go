package ethos

import (
	"testing"
	"time"
)

func TestConstitution_IsActive(t *testing.T) {
	archived := time.Now()
	tests := []struct {
		name         string
		archivedDate *time.Time
		want         bool
	}{
		{"active version", nil, true},
		{"archived version", &archived, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Constitution{ArchivedDate: tt.archivedDate}
			if got := c.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEthos_Compress_RetainsIncompleteStepsOnly(t *testing.T) {
	e := &Ethos{
		ActivePlan: []PlanStep{
			{Description: "step one", Completed: true},
			{Description: "step two", Completed: false},
			{Description: "step three", Completed: true},
		},
		WorkingState: []byte(`{"scratch":"data"}`),
	}

	e.Compress()

	if e.WorkingState != nil {
		t.Error("expected working_state cleared after Compress")
	}
	if len(e.ActivePlan) != 1 || e.ActivePlan[0].Description != "step two" {
		t.Errorf("expected only incomplete step retained, got %+v", e.ActivePlan)
	}
}

func TestEthos_Compress_NeverTouchesRulesOrRestrictions(t *testing.T) {
	e := &Ethos{
		BehavioralRules: []string{"rule one"},
		Restrictions:    []string{"restriction one"},
	}
	e.Compress()

	if len(e.BehavioralRules) != 1 || len(e.Restrictions) != 1 {
		t.Error("Compress must never remove behavioral rules or restrictions")
	}
}

func TestEthos_AddLessonLearned_CapsAtFifty(t *testing.T) {
	e := &Ethos{}
	for i := 0; i < 60; i++ {
		e.AddLessonLearned("lesson")
	}

	if len(e.LessonsLearned) != maxLessonsLearned {
		t.Errorf("expected lessons_learned capped at %d, got %d", maxLessonsLearned, len(e.LessonsLearned))
	}
}

func TestEthos_Compress_CapsLessonsLearned(t *testing.T) {
	lessons := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		lessons = append(lessons, "lesson")
	}
	e := &Ethos{LessonsLearned: lessons}
	e.Compress()

	if len(e.LessonsLearned) != maxLessonsLearned {
		t.Errorf("expected lessons_learned capped at %d after Compress, got %d", maxLessonsLearned, len(e.LessonsLearned))
	}
}
