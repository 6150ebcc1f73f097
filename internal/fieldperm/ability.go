package fieldperm

import (
	"slices"
	"strings"
)

// Ability answers field-level permission questions. An empty field asks
// about the subject as a whole.
type Ability interface {
	Can(action, subject, field string) bool
}

// RuleAbility grants what its rules list. A rule without a subject applies
// to every subject; a rule without fields covers every field. A field is
// granted when it equals a rule field or is nested under one. Conditions are
// not evaluated.
type RuleAbility struct {
	rules []Rule
}

// NewRuleAbility creates an ability from rules.
func NewRuleAbility(rules ...Rule) *RuleAbility {
	return &RuleAbility{rules: rules}
}

// Can implements Ability.
func (a *RuleAbility) Can(action, subject, field string) bool {
	for _, r := range a.rules {
		if r.Action != action || (r.Subject != "" && r.Subject != subject) {
			continue
		}
		if field == "" || r.Fields == nil {
			return true
		}
		for _, f := range r.Fields {
			if field == f || strings.HasPrefix(field, f+".") {
				return true
			}
		}
	}
	return false
}

// PermittedFields returns the paths of model, intermediate component nodes
// included, that ability grants for action.
func PermittedFields(ability Ability, action string, model *Model, opts Options) []string {
	if model == nil {
		return nil
	}
	var out []string
	for _, path := range NestedFieldsWithIntermediate(model, opts) {
		if ability.Can(action, model.UID, path) {
			out = append(out, path)
		}
	}
	return out
}

// SanitizeInput returns a copy of data holding only the attributes ability
// grants for action. Components are filtered recursively when only some of
// their fields are granted. Keys unknown to the model are dropped except "id".
func SanitizeInput(ability Ability, action string, model *Model, opts Options, data map[string]any) map[string]any {
	permitted := PermittedFields(ability, action, model, opts)
	return sanitize(model, "", opts, permitted, data)
}

func sanitize(model *Model, prefix string, opts Options, permitted []string, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if key == "id" {
			out[key] = value
			continue
		}
		attr, ok := model.Attribute(key)
		if !ok {
			continue
		}

		path := joinPath(prefix, key)
		if slices.Contains(permitted, path) {
			out[key] = value
			continue
		}
		if !attr.IsComponent() || !leadsTo(path+".", permitted) {
			continue
		}

		component := opts.Schema.Component(attr.Component)
		switch v := value.(type) {
		case map[string]any:
			out[key] = sanitize(component, path, opts, permitted, v)
		case []any:
			items := make([]any, 0, len(v))
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					items = append(items, sanitize(component, path, opts, permitted, m))
				}
			}
			out[key] = items
		case nil:
			out[key] = nil
		}
	}
	return out
}
