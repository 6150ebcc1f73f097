// Package fieldperm computes the field paths a permission rule may cover on
// content types with nested components, cleans stored rules against the
// current schema and filters input through a field-level ability.
package fieldperm

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// AttributeTypeComponent marks an attribute holding a nested component.
const AttributeTypeComponent = "component"

// Attribute is one field of a content type or component.
type Attribute struct {
	Name      string `yaml:"-"`
	Type      string `yaml:"type"`
	Component string `yaml:"component,omitempty"`
	Required  bool   `yaml:"required,omitempty"`
	// Repeatable components hold a list of values.
	Repeatable bool `yaml:"repeatable,omitempty"`
	// Visible is nil when unset; only an explicit false hides the attribute.
	Visible *bool `yaml:"visible,omitempty"`
}

// IsVisible reports whether the attribute is shown to field permissions.
func (a Attribute) IsVisible() bool {
	return a.Visible == nil || *a.Visible
}

// IsComponent reports whether a holds a component.
func (a Attribute) IsComponent() bool {
	return a.Type == AttributeTypeComponent
}

// Attributes keeps attributes in declaration order.
type Attributes []Attribute

// UnmarshalYAML decodes a mapping of name to attribute, preserving order.
func (as *Attributes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("attributes must be a mapping at line %d", node.Line)
	}
	out := make(Attributes, 0, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var a Attribute
		if err := value.Decode(&a); err != nil {
			return fmt.Errorf("attribute %q: %w", key.Value, err)
		}
		a.Name = key.Value
		out = append(out, a)
	}
	*as = out
	return nil
}

// Model is a content type or a component.
type Model struct {
	UID        string     `yaml:"-"`
	Attributes Attributes `yaml:"attributes"`
}

// Attribute returns the attribute called name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	if m == nil {
		return Attribute{}, false
	}
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Schema holds every content type and component by UID.
type Schema struct {
	ContentTypes map[string]*Model `yaml:"contentTypes"`
	Components   map[string]*Model `yaml:"components"`
}

// ContentType returns the content type with uid, or nil.
func (s *Schema) ContentType(uid string) *Model {
	if s == nil {
		return nil
	}
	return s.ContentTypes[uid]
}

// Component returns the component with uid, or nil.
func (s *Schema) Component(uid string) *Model {
	if s == nil {
		return nil
	}
	return s.Components[uid]
}

// LoadSchema reads a YAML document of the form
//
//	contentTypes:
//	  api::article.article:
//	    attributes:
//	      title: {type: string, required: true}
//	      seo: {type: component, component: shared.seo}
//	components:
//	  shared.seo:
//	    attributes:
//	      metaTitle: {type: string}
//
// Attribute order follows the document.
func LoadSchema(r io.Reader) (*Schema, error) {
	var s Schema
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if s.ContentTypes == nil {
		s.ContentTypes = make(map[string]*Model)
	}
	if s.Components == nil {
		s.Components = make(map[string]*Model)
	}

	for uid, m := range s.ContentTypes {
		if m == nil {
			m = &Model{}
			s.ContentTypes[uid] = m
		}
		m.UID = uid
	}
	for uid, m := range s.Components {
		if m == nil {
			m = &Model{}
			s.Components[uid] = m
		}
		m.UID = uid
	}

	for _, m := range s.ContentTypes {
		if err := s.checkComponents(m); err != nil {
			return nil, err
		}
	}
	for _, m := range s.Components {
		if err := s.checkComponents(m); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (s *Schema) checkComponents(m *Model) error {
	for _, a := range m.Attributes {
		if !a.IsComponent() {
			continue
		}
		if a.Component == "" {
			return fmt.Errorf("%s.%s: component attribute without component uid", m.UID, a.Name)
		}
		if _, ok := s.Components[a.Component]; !ok {
			return fmt.Errorf("%s.%s: unknown component %q", m.UID, a.Name, a.Component)
		}
	}
	return nil
}
