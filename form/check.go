package form

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ptarchi/gridforms/model"
)

// CheckDefinition verifies the referential integrity of a form definition
// before it is saved. Dangling rule references are rejected here so the
// engine can treat its input as well-formed at fill time.
func CheckDefinition(fields []model.FieldDef, rules []model.Rule) error {
	var errs *multierror.Error

	ids := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("field %d: missing id", i))
			continue
		}
		if ids[f.ID] {
			errs = multierror.Append(errs, fmt.Errorf("field %d: duplicate id %q", i, f.ID))
		}
		ids[f.ID] = true
		if f.SourceFieldID == "" {
			errs = multierror.Append(errs, fmt.Errorf("field %q: missing source field id", f.ID))
		}
		if !f.Type.Known() {
			errs = multierror.Append(errs, fmt.Errorf("field %q: unknown type %q", f.ID, f.Type))
		}
	}

	for i, r := range rules {
		if !ids[r.TriggerFieldID] {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: trigger references unknown field %q", i, r.TriggerFieldID))
		}
		if !ids[r.TargetFieldID] {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: target references unknown field %q", i, r.TargetFieldID))
		}
		if r.TriggerFieldID != "" && r.TriggerFieldID == r.TargetFieldID {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: targets its own trigger %q", i, r.TriggerFieldID))
		}
		if !r.Operator.Known() {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: unknown operator %q", i, r.Operator))
		}
		if !r.Action.Known() {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: unknown action %q", i, r.Action))
		}
	}

	return errs.ErrorOrNil()
}
