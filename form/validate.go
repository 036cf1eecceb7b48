package form

import "github.com/ptarchi/gridforms/model"

const requiredMessage = "This field is required"

// Validate reports per-field errors for the current answers. Only visible
// required fields can fail; a hidden field is never validated, whatever its
// value. An empty result means the form is submittable.
func Validate(fields []model.FieldDef, visible Visibility, values map[string]any) map[string]string {
	errors := map[string]string{}
	for _, f := range fields {
		if !f.Required || !visible.Has(f.ID) {
			continue
		}
		if emptyValue(f.Type, values[f.ID]) {
			errors[f.ID] = requiredMessage
		}
	}
	return errors
}

func emptyValue(t model.FieldType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case model.FieldText, model.FieldLongText, model.FieldSingleSelect:
		s, ok := v.(string)
		return ok && s == ""
	case model.FieldMultiSelect, model.FieldAttachments:
		switch v := v.(type) {
		case []any:
			return len(v) == 0
		case []string:
			return len(v) == 0
		}
		return false
	}
	return false
}
