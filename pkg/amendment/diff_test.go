package amendment

import (
	"strings"
	"testing"

	"github.com/neurotech-brt/agentium/pkg/ethos"
)

func TestRenderDiff_AddedArticle(t *testing.T) {
	current := ethos.Constitution{Version: "1.0", Articles: map[int]ethos.Article{}}
	proposed := map[int]ethos.Article{8: {Title: "Privacy", Content: "All agents shall respect data privacy."}}

	diff := renderDiff(current, proposed, nil, nil)
	if !strings.Contains(diff, "+ Privacy: All agents shall respect data privacy.") {
		t.Errorf("expected added article to appear with a + marker, got:\n%s", diff)
	}
	if !strings.Contains(diff, "@@ article 8 @@") {
		t.Errorf("expected article number header, got:\n%s", diff)
	}
}

func TestRenderDiff_ChangedArticle(t *testing.T) {
	current := ethos.Constitution{Version: "1.0", Articles: map[int]ethos.Article{
		3: {Title: "Transparency", Content: "Agents shall log all actions."},
	}}
	proposed := map[int]ethos.Article{
		3: {Title: "Transparency", Content: "Agents shall log all actions in structured form."},
	}

	diff := renderDiff(current, proposed, nil, nil)
	if !strings.Contains(diff, "- Transparency: Agents shall log all actions.") {
		t.Errorf("expected removed old content line, got:\n%s", diff)
	}
	if !strings.Contains(diff, "+ Transparency: Agents shall log all actions in structured form.") {
		t.Errorf("expected added new content line, got:\n%s", diff)
	}
}

func TestRenderDiff_UnchangedArticleOmitted(t *testing.T) {
	article := ethos.Article{Title: "Stability", Content: "Nothing changes here."}
	current := ethos.Constitution{Version: "1.0", Articles: map[int]ethos.Article{5: article}}
	proposed := map[int]ethos.Article{5: article}

	diff := renderDiff(current, proposed, nil, nil)
	if strings.Contains(diff, "article 5") {
		t.Errorf("unchanged article should not appear in diff, got:\n%s", diff)
	}
}

func TestRenderDiff_ProhibitionsDelta(t *testing.T) {
	current := ethos.Constitution{Version: "1.0", Articles: map[int]ethos.Article{}, Prohibitions: []string{"deceive_sovereign"}}
	proposed := []string{"deceive_sovereign", "withhold_critical_information"}

	diff := renderDiff(current, nil, proposed, nil)
	if !strings.Contains(diff, "+ withhold_critical_information") {
		t.Errorf("expected new prohibition to appear, got:\n%s", diff)
	}
	if strings.Contains(diff, "- deceive_sovereign") {
		t.Errorf("unchanged prohibition should not appear as removed, got:\n%s", diff)
	}
}

func TestDiffLines_AddedAndRemoved(t *testing.T) {
	out := diffLines([]string{"a", "b"}, []string{"b", "c"})
	if !strings.Contains(out, "- a") {
		t.Errorf("expected removed entry 'a', got:\n%s", out)
	}
	if !strings.Contains(out, "+ c") {
		t.Errorf("expected added entry 'c', got:\n%s", out)
	}
	if strings.Contains(out, "- b") || strings.Contains(out, "+ b") {
		t.Errorf("shared entry 'b' should not appear in the diff, got:\n%s", out)
	}
}
