package reincarnation

import (
	"strings"
	"testing"
)

func TestWisdomEntry_TagsIncarnationNumber(t *testing.T) {
	entry := wisdomEntry(3, "learned to double-check acceptance criteria")
	if !strings.HasPrefix(entry, "[LIFE_3_WISDOM]:") {
		t.Errorf("expected a LIFE_3_WISDOM prefix, got: %s", entry)
	}
}

func TestWithIncarnationMarker_AppendsWhenAbsent(t *testing.T) {
	mission := "I am a Task agent."
	out := withIncarnationMarker(mission, incarnationMarker(1, 1))
	if !strings.Contains(out, "I am a Task agent.") {
		t.Error("expected original mission text preserved")
	}
	if !strings.Contains(out, "[INCARNATION 1 COMPLETE]") {
		t.Errorf("expected marker appended, got: %s", out)
	}
}

func TestWithIncarnationMarker_ReplacesExisting(t *testing.T) {
	mission := "I am a Task agent.\n\n[INCARNATION 1 COMPLETE]: this agent has lived 1 lives, 1 wisdom entries accumulated."
	out := withIncarnationMarker(mission, incarnationMarker(2, 2))
	if strings.Count(out, "[INCARNATION") != 1 {
		t.Errorf("expected exactly one marker after replacement, got: %s", out)
	}
	if !strings.Contains(out, "[INCARNATION 2 COMPLETE]") {
		t.Errorf("expected the new marker to win, got: %s", out)
	}
}

func TestTruncate_LeavesShortStringsUntouched(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("expected untouched string, got: %s", got)
	}
}

func TestTruncate_CapsLongStrings(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := truncate(long, 10)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected an ellipsis suffix, got: %s", got)
	}
	if len([]rune(got)) != 13 {
		t.Errorf("expected 10 chars + ellipsis, got %d runes", len([]rune(got)))
	}
}
