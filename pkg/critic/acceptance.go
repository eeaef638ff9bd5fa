package critic

import (
	"strconv"
	"strings"
)

// EvaluateCriteria runs the deterministic, metric-name-driven checks for
// every criterion whose validator matches specialty (§4.5 "Acceptance
// criteria"). Criteria belonging to a different specialty are recorded as
// skipped-and-passed, since that critic isn't responsible for them.
func EvaluateCriteria(criteria []AcceptanceCriterion, content string, specialty Specialty) []CriterionResult {
	results := make([]CriterionResult, 0, len(criteria))
	for _, c := range criteria {
		if c.Validator != specialty {
			results = append(results, CriterionResult{
				Metric:      c.Metric,
				Passed:      true,
				ActualValue: "N/A — different critic responsible",
				Threshold:   c.Threshold,
				IsMandatory: c.IsMandatory,
				Notes:       "skipped: not this critic's domain",
			})
			continue
		}
		passed, actual, notes := runCheck(c, content)
		results = append(results, CriterionResult{
			Metric:      c.Metric,
			Passed:      passed,
			ActualValue: actual,
			Threshold:   c.Threshold,
			IsMandatory: c.IsMandatory,
			Notes:       notes,
		})
	}
	return results
}

// Aggregate summarizes a slice of CriterionResult, reporting whether every
// mandatory criterion passed (§4.5: a single mandatory failure is an
// immediate REJECT).
func Aggregate(results []CriterionResult) Aggregation {
	agg := Aggregation{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			agg.Passed++
		} else if r.IsMandatory {
			agg.MandatoryFailures = append(agg.MandatoryFailures, r.Metric)
		}
	}
	agg.Failed = agg.Total - agg.Passed
	agg.AllMandatoryPassed = len(agg.MandatoryFailures) == 0
	return agg
}

var sqlKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "WITH"}

// runCheck dispatches to a built-in checker based on the criterion's metric
// name (§4.5 / SPEC_FULL.md Critic Engine supplement):
//
//	sql_syntax_*      -> SQL keyword presence
//	result_not_empty  -> non-empty output
//	length_*          -> character/word length threshold
//	contains_*         -> keyword presence
//	*                  -> generic fallback, deferred to the AI review stage
func runCheck(c AcceptanceCriterion, content string) (passed bool, actual any, notes string) {
	metric := c.Metric

	switch {
	case strings.HasPrefix(metric, "sql_syntax"):
		upper := strings.ToUpper(content)
		hasSQL := false
		for _, kw := range sqlKeywords {
			if strings.Contains(upper, kw) {
				hasSQL = true
				break
			}
		}
		if hasSQL {
			return true, true, "SQL keyword found"
		}
		return false, false, "no SQL keyword detected"

	case metric == "result_not_empty":
		stripped := strings.TrimSpace(content)
		passed := stripped != ""
		if passed {
			return true, len(stripped), "output is non-empty"
		}
		return false, len(stripped), "output is empty"

	case strings.HasPrefix(metric, "length_"):
		unit := strings.TrimPrefix(metric, "length_")
		var actualVal int
		if unit == "words" {
			actualVal = len(strings.Fields(content))
		} else {
			actualVal = len(content)
		}
		lo, hi, isRange := thresholdRange(c.Threshold)
		if isRange {
			passed := actualVal >= lo && actualVal <= hi
			return passed, actualVal, rangeNotes(actualVal, unit, lo, hi)
		}
		min := thresholdInt(c.Threshold)
		passed = actualVal >= min
		return passed, actualVal, minNotes(actualVal, unit, min)

	case strings.HasPrefix(metric, "contains_"):
		keyword := strings.ReplaceAll(strings.TrimPrefix(metric, "contains_"), "_", " ")
		found := strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
		if found {
			return true, true, "'" + keyword + "' found"
		}
		return false, false, "'" + keyword + "' not found"

	default:
		if _, ok := c.Threshold.(bool); ok {
			return true, "deferred_to_ai", "boolean check deferred to AI critic"
		}
		return true, "deferred_to_ai", "generic metric — deferred to AI critic"
	}
}

// thresholdRange interprets threshold as a two-element [lo, hi] range, when
// it is one — a JSON-decoded criterion carries this as []any.
func thresholdRange(threshold any) (lo, hi int, ok bool) {
	items, isSlice := threshold.([]any)
	if !isSlice || len(items) != 2 {
		return 0, 0, false
	}
	lo, okLo := toInt(items[0])
	hi, okHi := toInt(items[1])
	if !okLo || !okHi {
		return 0, 0, false
	}
	return lo, hi, true
}

func thresholdInt(threshold any) int {
	n, _ := toInt(threshold)
	return n
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func rangeNotes(actual int, unit string, lo, hi int) string {
	return strconv.Itoa(actual) + " " + unit + " (expected " + strconv.Itoa(lo) + "-" + strconv.Itoa(hi) + ")"
}

func minNotes(actual int, unit string, min int) string {
	return strconv.Itoa(actual) + " " + unit + " (minimum " + strconv.Itoa(min) + ")"
}
