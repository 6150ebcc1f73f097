// Package permission validates and reconciles the action identifiers granted
// to tokens against a registry of known actions.
package permission

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// ActionDescriptor describes one registered action.
type ActionDescriptor struct {
	ActionID          string   `yaml:"actionId"`
	Section           string   `yaml:"section,omitempty"`
	Subjects          []string `yaml:"subjects,omitempty"`
	ApplyToProperties []string `yaml:"applyToProperties,omitempty"`
}

// AppliesTo reports whether the action is declared for property, e.g. "fields".
func (a ActionDescriptor) AppliesTo(property string) bool {
	return slices.Contains(a.ApplyToProperties, property)
}

// Registry is the source of truth for valid action identifiers.
type Registry interface {
	Keys() []string
	Values() []ActionDescriptor
}

// StaticRegistry is an immutable Registry.
type StaticRegistry struct {
	actions []ActionDescriptor
	byID    map[string]int
}

// NewStaticRegistry builds a registry. Later descriptors with a repeated
// ActionID replace earlier ones.
func NewStaticRegistry(actions ...ActionDescriptor) *StaticRegistry {
	r := &StaticRegistry{byID: make(map[string]int, len(actions))}
	for _, a := range actions {
		if i, ok := r.byID[a.ActionID]; ok {
			r.actions[i] = a
			continue
		}
		r.byID[a.ActionID] = len(r.actions)
		r.actions = append(r.actions, a)
	}
	return r
}

// FromKeys builds a registry of bare action identifiers.
func FromKeys(keys ...string) *StaticRegistry {
	actions := make([]ActionDescriptor, len(keys))
	for i, k := range keys {
		actions[i] = ActionDescriptor{ActionID: k}
	}
	return NewStaticRegistry(actions...)
}

// Keys returns the action identifiers in registration order.
func (r *StaticRegistry) Keys() []string {
	keys := make([]string, len(r.actions))
	for i, a := range r.actions {
		keys[i] = a.ActionID
	}
	return keys
}

// Values returns a copy of the descriptors.
func (r *StaticRegistry) Values() []ActionDescriptor {
	return slices.Clone(r.actions)
}

// Get returns the descriptor for actionID.
func (r *StaticRegistry) Get(actionID string) (ActionDescriptor, bool) {
	i, ok := r.byID[actionID]
	if !ok {
		return ActionDescriptor{}, false
	}
	return r.actions[i], true
}

type registryFile struct {
	Actions []ActionDescriptor `yaml:"actions"`
}

// LoadRegistry reads a YAML document of the form
//
//	actions:
//	  - actionId: api::article.article.find
//	    subjects: [api::article.article]
//	    applyToProperties: [fields]
func LoadRegistry(r io.Reader) (*StaticRegistry, error) {
	var f registryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return NewStaticRegistry(), nil
		}
		return nil, fmt.Errorf("failed to decode permission registry: %w", err)
	}
	for i, a := range f.Actions {
		if a.ActionID == "" {
			return nil, fmt.Errorf("permission registry entry %d has no actionId", i)
		}
	}
	return NewStaticRegistry(f.Actions...), nil
}
