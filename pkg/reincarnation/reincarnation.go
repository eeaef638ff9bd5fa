// Package reincarnation implements the Reincarnation Controller (§4.9): the
// summarise → update-ethos → terminate → spawn-successor → transfer-task
// cycle triggered when an agent's running token count approaches its
// context-window budget.
package reincarnation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// incarnationMarkerPrefix tags the mission-statement line the controller
// maintains across lives, replaced (not appended to) on every cycle.
const incarnationMarkerPrefix = "[INCARNATION"

// Result mirrors the source's reincarnation result dict, reported to the
// caller and the audit log.
type Result struct {
	PredecessorRef      uuid.UUID `json:"predecessor_ref"`
	IncarnationNumber   int       `json:"incarnation_number"`
	Summarized          bool      `json:"summarized"`
	EthosUpdated        bool      `json:"ethos_updated"`
	Terminated          bool      `json:"terminated"`
	SuccessorSpawned    bool      `json:"successor_spawned"`
	SuccessorRef        uuid.UUID `json:"successor_ref,omitempty"`
	WisdomAdded         string    `json:"wisdom_added,omitempty"`
	TaskTransferred     bool      `json:"task_transferred"`
}

// wisdomEntry formats a life summary as the §4.9 step-2
// "[LIFE_n_WISDOM]" behavioral-rule entry.
func wisdomEntry(incarnation int, summary string) string {
	return fmt.Sprintf("[LIFE_%d_WISDOM]: %s", incarnation, summary)
}

// incarnationMarker formats the §4.9 step-2 mission-statement marker.
func incarnationMarker(incarnation, wisdomCount int) string {
	return fmt.Sprintf("%s %d COMPLETE]: this agent has lived %d lives, %d wisdom entries accumulated.",
		incarnationMarkerPrefix, incarnation, incarnation, wisdomCount)
}

// withIncarnationMarker replaces any existing marker line in mission with a
// fresh one, appending if none exists yet — mirrors the source's
// strip-old-marker-then-append behaviour rather than growing unbounded.
func withIncarnationMarker(mission, marker string) string {
	lines := strings.Split(mission, "\n")
	var kept []string
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), incarnationMarkerPrefix) {
			kept = append(kept, l)
		}
	}
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}
	kept = append(kept, "", marker)
	return strings.Join(kept, "\n")
}

// truncate keeps the first n runes of s and appends "..." when s is longer.
// It bounds the work context sent for summarization, the fallback summary
// used when that call fails, and predecessor wisdom folded into a
// successor's mission statement.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
