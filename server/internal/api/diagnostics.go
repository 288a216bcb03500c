package api

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/errprop/errprop/pkg/propagation"
)

// Thresholds for the numeric hints.
const (
	highRelativeErrorPct = 10.0
	cancellationRatio    = 0.1
)

// DiagnosticHint is one human-readable remark about a result. The UI shows
// these under the result panel.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "info" | "warning"
	Level string `json:"level"`
	// Title is a short label (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from the term list and its result.
// Warnings come first, then info.
func computeDiagnostics(terms []propagation.Term, r propagation.Result) []DiagnosticHint {
	hints := []DiagnosticHint{}
	if len(terms) == 0 {
		return hints
	}

	// ── Mixed units ──────────────────────────────────────────────────────────
	var others []string
	for _, t := range terms[1:] {
		if t.Unit != r.Unit && !contains(others, t.Unit) {
			others = append(others, t.Unit)
		}
	}
	if len(others) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "mixed_units",
			Level: "warning",
			Title: "Units differ",
			Detail: fmt.Sprintf(
				"The result is labelled %q after the first term, but other terms use %s. "+
					"No conversion is done: the numbers are combined as typed.",
				r.Unit, quoteAll(others)),
		})
	}

	// ── Negative absolute error ──────────────────────────────────────────────
	for _, t := range terms {
		if t.Error < 0 {
			v := t.Error
			hints = append(hints, DiagnosticHint{
				Key:   "negative_error",
				Level: "warning",
				Title: "Negative error",
				Detail: fmt.Sprintf(
					"Term %s has a negative absolute error. An uncertainty bound is never negative; "+
						"this one shrinks the total instead of widening it.", propagation.Chip(t)),
				Value: &v,
			})
			break
		}
	}

	// ── Cancellation ─────────────────────────────────────────────────────────
	if hasSubtraction(terms) && r.Value != 0 {
		largest := 0.0
		for _, t := range terms {
			largest = math.Max(largest, math.Abs(t.Value))
		}
		if largest > 0 && math.Abs(r.Value) < cancellationRatio*largest {
			ratio := math.Abs(r.Value) / largest
			hints = append(hints, DiagnosticHint{
				Key:   "cancellation",
				Level: "warning",
				Title: "Near cancellation",
				Detail: "The difference is small compared with the quantities subtracted. " +
					"The absolute errors still add up, so the relative error of the result grows sharply.",
				Value: &ratio,
			})
		}
	}

	// ── High relative error ──────────────────────────────────────────────────
	if rel := propagation.RelativeErrorPct(r); rel > highRelativeErrorPct {
		hints = append(hints, DiagnosticHint{
			Key:    "high_relative_error",
			Level:  "warning",
			Title:  "Large relative error",
			Detail: fmt.Sprintf("The uncertainty is %s%% of the value.", propagation.FormatFixed(rel, 2)),
			Value:  &rel,
		})
	}

	// ── Zero value ───────────────────────────────────────────────────────────
	if r.Value == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "zero_value",
			Level: "info",
			Title: "Relative error undefined",
			Detail: "The result is exactly zero, so error/|value| has no meaning. " +
				"The relative error is shown as 0.",
		})
	}

	// ── Single term ──────────────────────────────────────────────────────────
	if len(terms) == 1 {
		hints = append(hints, DiagnosticHint{
			Key:    "single_term",
			Level:  "info",
			Title:  "Add a term",
			Detail: "With a single term the result is the measurement itself. Add terms to see how errors accumulate.",
		})
	} else {
		errs := make([]string, 0, len(terms))
		for _, t := range terms {
			errs = append(errs, strconv.FormatFloat(t.Error, 'f', -1, 64))
		}
		// 'g' with 12 digits hides float noise such as 0.1 + 0.2.
		total := r.Error
		hints = append(hints, DiagnosticHint{
			Key:   "error_sum",
			Level: "info",
			Title: "Errors add up",
			Detail: fmt.Sprintf("Δ = %s = %s, whatever the signs of the terms.",
				strings.Join(errs, " + "), strconv.FormatFloat(total, 'g', 12, 64)),
			Value: &total,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func levelRank(level string) int {
	switch level {
	case "warning":
		return 0
	case "info":
		return 1
	default:
		return 2
	}
}

func hasSubtraction(terms []propagation.Term) bool {
	for _, t := range terms[1:] {
		if t.Operation == propagation.OpSub {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func quoteAll(list []string) string {
	q := make([]string, len(list))
	for i, s := range list {
		q[i] = strconv.Quote(s)
	}
	return strings.Join(q, ", ")
}
