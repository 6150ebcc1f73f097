package fieldperm

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/sipico/admin-auth/internal/permission"
)

// DefaultNestingLevel bounds recursion into components, which may be cyclic.
const DefaultNestingLevel = 15

// FieldsProperty is the action property that carries field paths.
const FieldsProperty = "fields"

// Rule is a permission on a subject. Fields is nil when the rule carries no
// fields property at all; an empty Fields permits no field.
type Rule struct {
	Action     string   `json:"action" yaml:"action"`
	Subject    string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Fields     []string `json:"fields" yaml:"fields"`
	Conditions []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// encodedRule omits fields only when the rule has none, so an empty list
// survives encoding.
type encodedRule struct {
	Action     string    `json:"action" yaml:"action"`
	Subject    string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Fields     *[]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Conditions []string  `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

func (r Rule) encoded() encodedRule {
	e := encodedRule{Action: r.Action, Subject: r.Subject, Conditions: r.Conditions}
	if r.Fields != nil {
		fields := r.Fields
		e.Fields = &fields
	}
	return e
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encoded())
}

// MarshalYAML implements yaml.Marshaler.
func (r Rule) MarshalYAML() (any, error) {
	return r.encoded(), nil
}

// Options tune the walks over a model.
type Options struct {
	// Schema resolves components and content types.
	Schema *Schema
	// NestingLevel is the maximum component depth; zero means DefaultNestingLevel.
	NestingLevel int
	// RequiredOnly keeps required attributes and attributes that lead to
	// one of ExistingFields.
	RequiredOnly   bool
	ExistingFields []string
	// RestrictedSubjects are skipped by PermissionsWithNestedFields.
	RestrictedSubjects []string
}

func (o Options) level() int {
	if o.NestingLevel <= 0 {
		return DefaultNestingLevel
	}
	return o.NestingLevel
}

// NestedFields returns the leaf paths of model in declaration order,
// descending into components as "parent.child". Hidden attributes are
// skipped. A component with no selected sub-field contributes its own path.
func NestedFields(model *Model, opts Options) []string {
	return nestedFields(model, "", opts.level(), opts)
}

func nestedFields(model *Model, prefix string, level int, opts Options) []string {
	if level == 0 {
		if prefix != "" {
			return []string{prefix}
		}
		return []string{}
	}

	fields := []string{}
	if model == nil {
		return fields
	}
	for _, attr := range model.Attributes {
		if !attr.IsVisible() {
			continue
		}
		path := joinPath(prefix, attr.Name)
		include := !opts.RequiredOnly || attr.Required

		if !attr.IsComponent() {
			if include {
				fields = append(fields, path)
			}
			continue
		}

		if !include && !leadsTo(path, opts.ExistingFields) {
			continue
		}
		sub := nestedFields(opts.Schema.Component(attr.Component), path, level-1, opts)
		if len(sub) == 0 {
			if include {
				fields = append(fields, path)
			}
			continue
		}
		fields = append(fields, sub...)
	}
	return fields
}

// NestedFieldsWithIntermediate returns every path of model, components
// included as their own nodes before their children. It is the universe of
// paths a stored rule may reference.
func NestedFieldsWithIntermediate(model *Model, opts Options) []string {
	return nestedFieldsWithIntermediate(model, "", opts.level(), opts)
}

func nestedFieldsWithIntermediate(model *Model, prefix string, level int, opts Options) []string {
	fields := []string{}
	if level == 0 || model == nil {
		return fields
	}
	for _, attr := range model.Attributes {
		path := joinPath(prefix, attr.Name)
		fields = append(fields, path)
		if attr.IsComponent() {
			fields = append(fields, nestedFieldsWithIntermediate(opts.Schema.Component(attr.Component), path, level-1, opts)...)
		}
	}
	return fields
}

// PermissionsWithNestedFields expands every action into one rule per
// subject. Rules of actions declared for the fields property get every
// nested field of the subject; others get no fields property.
func PermissionsWithNestedFields(actions []permission.ActionDescriptor, opts Options) []Rule {
	var rules []Rule
	for _, action := range actions {
		withFields := action.AppliesTo(FieldsProperty)
		for _, subject := range action.Subjects {
			if slices.Contains(opts.RestrictedSubjects, subject) {
				continue
			}
			rule := Rule{Action: action.ActionID, Subject: subject}
			if withFields {
				rule.Fields = NestedFields(opts.Schema.ContentType(subject), opts)
			}
			rules = append(rules, rule)
		}
	}
	return rules
}

// ActionLookup resolves an action descriptor by id.
type ActionLookup interface {
	Get(actionID string) (permission.ActionDescriptor, bool)
}

// CleanPermissionFields rewrites the fields of each rule against the current
// schema. Fields are dropped for actions not declared for them. Otherwise the
// result is the stored fields still present in the schema plus the required
// fields, without any path that has a selected child. Rules for an unknown
// action or subject are returned unchanged.
func CleanPermissionFields(rules []Rule, actions ActionLookup, opts Options) []Rule {
	out := make([]Rule, len(rules))
	for i, rule := range rules {
		out[i] = cleanRule(rule, actions, opts)
	}
	return out
}

func cleanRule(rule Rule, actions ActionLookup, opts Options) Rule {
	action, ok := actions.Get(rule.Action)
	if !ok {
		return rule
	}
	if !action.AppliesTo(FieldsProperty) {
		rule.Fields = nil
		return rule
	}
	model := opts.Schema.ContentType(rule.Subject)
	if rule.Subject == "" || model == nil {
		return rule
	}

	possible := NestedFieldsWithIntermediate(model, opts)
	reqOpts := opts
	reqOpts.RequiredOnly = true
	reqOpts.ExistingFields = rule.Fields
	required := NestedFields(model, reqOpts)

	kept := make([]string, 0, len(rule.Fields)+len(required))
	for _, f := range rule.Fields {
		if slices.Contains(possible, f) {
			kept = append(kept, f)
		}
	}
	kept = permission.Unique(append(kept, required...))

	fields := make([]string, 0, len(kept))
	for _, f := range kept {
		if !leadsTo(f+".", kept) {
			fields = append(fields, f)
		}
	}
	rule.Fields = fields
	return rule
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// leadsTo reports whether any of fields starts with prefix.
func leadsTo(prefix string, fields []string) bool {
	return slices.ContainsFunc(fields, func(f string) bool { return strings.HasPrefix(f, prefix) })
}
