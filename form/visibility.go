// Package form holds the conditional-visibility engine and the pure helpers
// around it: field validation, publish-time rule checking and mapping of
// answers to a remote record write body.
package form

import (
	"fmt"
	"strings"

	"github.com/ptarchi/gridforms/model"
)

// Visibility is the set of currently visible field ids.
type Visibility map[string]bool

func (v Visibility) Has(fieldID string) bool {
	return v[fieldID]
}

// FieldIDs returns the visible ids in the order fields are declared.
func (v Visibility) FieldIDs(fields []model.FieldDef) []string {
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if v[f.ID] {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// ComputeVisibility derives the visible field set from the current answers.
// It is a pure function: every edit triggers a full recompute, never an
// incremental patch.
//
// All fields start visible. Rules apply in declared order; a rule whose
// trigger field has no answer yet is skipped entirely (absence is not a
// value). A "show" rule removes its target while the condition does not hold;
// a "hide" rule removes it while the condition holds. A rule that fires
// always decides its target's membership, so the last rule touching a target
// wins. Rule effects never cascade within one pass: every trigger is read
// from the committed values map, not from the visibility being built.
func ComputeVisibility(fields []model.FieldDef, rules []model.Rule, values map[string]any) Visibility {
	visible := make(Visibility, len(fields))
	for _, f := range fields {
		visible[f.ID] = true
	}

	for _, rule := range rules {
		current, answered := values[rule.TriggerFieldID]
		if !answered || current == nil {
			continue
		}

		met := evalPredicate(rule.Operator, current, rule.CompareValue)
		visible[rule.TargetFieldID] = met == (rule.Action == model.ActionShow)
	}

	return visible
}

func evalPredicate(op model.Operator, current any, compare string) bool {
	switch op {
	case model.OpEquals:
		return textValue(current) == compare
	case model.OpNotEquals:
		return textValue(current) != compare
	case model.OpContains:
		return strings.Contains(textValue(current), compare)
	}
	// unknown operators are rejected when the form is saved
	return false
}

// textValue coerces an answer to text for comparison. Collections join with
// a bare comma, matching the historical string coercion of list values.
func textValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = textValue(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
