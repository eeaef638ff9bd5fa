package amendment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neurotech-brt/agentium/pkg/ethos"
)

// renderDiff produces a unified-diff-style rendering of the constitutional
// delta an amendment proposes, comparing the currently active articles
// against the proposed ones (ported from the source's debate-document
// renderer, which diffed markdown; here the diff is structural since
// pkg/ethos already models articles as a typed map).
func renderDiff(current ethos.Constitution, proposedArticles map[int]ethos.Article, proposedProhibitions, proposedSovereignPreferences []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- constitution v%s\n+++ proposed amendment\n", current.Version)

	numbers := make([]int, 0, len(current.Articles)+len(proposedArticles))
	seen := make(map[int]bool)
	for n := range current.Articles {
		if !seen[n] {
			numbers = append(numbers, n)
			seen[n] = true
		}
	}
	for n := range proposedArticles {
		if !seen[n] {
			numbers = append(numbers, n)
			seen[n] = true
		}
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		old, hasOld := current.Articles[n]
		next, hasNext := proposedArticles[n]
		switch {
		case hasOld && !hasNext:
			fmt.Fprintf(&b, "@@ article %d @@\n- %s: %s\n", n, old.Title, old.Content)
		case !hasOld && hasNext:
			fmt.Fprintf(&b, "@@ article %d @@\n+ %s: %s\n", n, next.Title, next.Content)
		case hasOld && hasNext && (old.Title != next.Title || old.Content != next.Content):
			fmt.Fprintf(&b, "@@ article %d @@\n- %s: %s\n+ %s: %s\n", n, old.Title, old.Content, next.Title, next.Content)
		}
	}

	if proposedProhibitions != nil {
		b.WriteString("@@ prohibitions @@\n")
		b.WriteString(diffLines(current.Prohibitions, proposedProhibitions))
	}
	if proposedSovereignPreferences != nil {
		b.WriteString("@@ sovereign_preferences @@\n")
		b.WriteString(diffLines(current.SovereignPreferences, proposedSovereignPreferences))
	}

	return b.String()
}

// diffLines renders a naive line-set diff: entries only in old are removed,
// entries only in next are added. Order within each side is preserved;
// this is a display aid, not a patch format.
func diffLines(old, next []string) string {
	oldSet := make(map[string]bool, len(old))
	for _, l := range old {
		oldSet[l] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, l := range next {
		nextSet[l] = true
	}

	var b strings.Builder
	for _, l := range old {
		if !nextSet[l] {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	for _, l := range next {
		if !oldSet[l] {
			fmt.Fprintf(&b, "+ %s\n", l)
		}
	}
	return b.String()
}
