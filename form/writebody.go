package form

import "github.com/ptarchi/gridforms/model"

// BuildWriteBody maps the final answers to a record-create body keyed by
// source column id. A field contributes only while visible and holding a
// value other than the empty string; answers entered while a field was
// visible and later hidden by a rule never reach the remote table. An empty
// collection that is visible still passes through: an intentionally empty
// multi-select is a legitimate answer.
func BuildWriteBody(frm model.Form, visible Visibility, values map[string]any) map[string]any {
	body := make(map[string]any)
	for _, f := range frm.Fields {
		if !visible.Has(f.ID) {
			continue
		}
		v, ok := values[f.ID]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		body[f.SourceFieldID] = v
	}
	return body
}
