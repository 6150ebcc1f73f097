package fieldperm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sipico/admin-auth/internal/permission"
)

const articleSchema = `
contentTypes:
  api::article.article:
    attributes:
      title: {type: string, required: true}
      body: {type: richtext}
      secret: {type: string, visible: false}
      seo: {type: component, component: shared.seo}
      meta: {type: component, component: shared.meta, required: true}
      blocks: {type: component, component: shared.seo, repeatable: true}
  api::node.node:
    attributes:
      root: {type: component, component: shared.tree}
components:
  shared.seo:
    attributes:
      metaTitle: {type: string, required: true}
      metaDescription: {type: string}
  shared.meta:
    attributes:
      hidden: {type: string, visible: false}
  shared.tree:
    attributes:
      label: {type: string}
      child: {type: component, component: shared.tree}
`

const article = "api::article.article"

func loadTestSchema(t *testing.T, doc string) *Schema {
	t.Helper()
	s, err := LoadSchema(strings.NewReader(doc))
	require.NoError(t, err)
	return s
}

func TestLoadSchema(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	m := s.ContentType(article)
	require.NotNil(t, m)
	assert.Equal(t, article, m.UID)

	names := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"title", "body", "secret", "seo", "meta", "blocks"}, names)

	secret, ok := m.Attribute("secret")
	require.True(t, ok)
	assert.False(t, secret.IsVisible())
	title, _ := m.Attribute("title")
	assert.True(t, title.IsVisible())
	assert.True(t, title.Required)

	assert.Equal(t, "shared.seo", s.Component("shared.seo").UID)
	assert.Nil(t, s.ContentType("api::missing.missing"))
}

func TestLoadSchema_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown component",
			doc:  "contentTypes:\n  a:\n    attributes:\n      x: {type: component, component: nope}\n",
		},
		{
			name: "component without uid",
			doc:  "contentTypes:\n  a:\n    attributes:\n      x: {type: component}\n",
		},
		{
			name: "attributes not a mapping",
			doc:  "contentTypes:\n  a:\n    attributes: [x, y]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchema(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}

	empty, err := LoadSchema(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.ContentTypes)
}

func TestNestedFields(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	m := s.ContentType(article)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "all visible leaves",
			opts: Options{Schema: s},
			want: []string{"title", "body", "seo.metaTitle", "seo.metaDescription", "meta", "blocks.metaTitle", "blocks.metaDescription"},
		},
		{
			name: "required only",
			opts: Options{Schema: s, RequiredOnly: true},
			want: []string{"title", "meta"},
		},
		{
			name: "required only inside existing component",
			opts: Options{Schema: s, RequiredOnly: true, ExistingFields: []string{"seo.metaDescription"}},
			want: []string{"title", "seo.metaTitle", "meta"},
		},
		{
			name: "nesting level one stops at components",
			opts: Options{Schema: s, NestingLevel: 1},
			want: []string{"title", "body", "seo", "meta", "blocks"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NestedFields(m, tt.opts))
		})
	}
}

func TestNestedFields_CyclicComponent(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	got := NestedFields(s.ContentType("api::node.node"), Options{Schema: s, NestingLevel: 3})
	assert.Equal(t, []string{"root.label", "root.child.label", "root.child.child"}, got)

	deep := NestedFields(s.ContentType("api::node.node"), Options{Schema: s})
	assert.Len(t, deep, DefaultNestingLevel)
}

func TestNestedFieldsWithIntermediate(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	got := NestedFieldsWithIntermediate(s.ContentType(article), Options{Schema: s})
	assert.Equal(t, []string{
		"title", "body", "secret",
		"seo", "seo.metaTitle", "seo.metaDescription",
		"meta", "meta.hidden",
		"blocks", "blocks.metaTitle", "blocks.metaDescription",
	}, got)

	assert.Empty(t, NestedFieldsWithIntermediate(nil, Options{Schema: s}))
}

func TestPermissionsWithNestedFields(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	actions := []permission.ActionDescriptor{
		{ActionID: "read", Subjects: []string{article, "api::node.node"}, ApplyToProperties: []string{"fields"}},
		{ActionID: "delete", Subjects: []string{article}},
	}

	rules := PermissionsWithNestedFields(actions, Options{Schema: s, NestingLevel: 2, RestrictedSubjects: []string{"api::node.node"}})
	require.Len(t, rules, 2)

	assert.Equal(t, "read", rules[0].Action)
	assert.Equal(t, article, rules[0].Subject)
	assert.Equal(t, NestedFields(s.ContentType(article), Options{Schema: s, NestingLevel: 2}), rules[0].Fields)

	assert.Equal(t, Rule{Action: "delete", Subject: article}, rules[1])
	assert.Nil(t, rules[1].Fields)
}

func TestCleanPermissionFields(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	actions := permission.NewStaticRegistry(
		permission.ActionDescriptor{ActionID: "read", ApplyToProperties: []string{"fields"}},
		permission.ActionDescriptor{ActionID: "delete"},
	)
	opts := Options{Schema: s}

	tests := []struct {
		name string
		rule Rule
		want Rule
	}{
		{
			name: "stale fields removed and required added",
			rule: Rule{Action: "read", Subject: article, Fields: []string{"title", "removed", "seo.metaDescription"}},
			want: Rule{Action: "read", Subject: article, Fields: []string{"title", "seo.metaDescription", "seo.metaTitle", "meta"}},
		},
		{
			name: "no fields gets required fields",
			rule: Rule{Action: "read", Subject: article},
			want: Rule{Action: "read", Subject: article, Fields: []string{"title", "meta"}},
		},
		{
			name: "hidden paths are part of the schema",
			rule: Rule{Action: "read", Subject: article, Fields: []string{"secret"}},
			want: Rule{Action: "read", Subject: article, Fields: []string{"secret", "title", "meta"}},
		},
		{
			name: "fields stripped when action has none",
			rule: Rule{Action: "delete", Subject: article, Fields: []string{"title"}},
			want: Rule{Action: "delete", Subject: article},
		},
		{
			name: "unknown subject passes through",
			rule: Rule{Action: "read", Subject: "api::gone.gone", Fields: []string{"whatever"}},
			want: Rule{Action: "read", Subject: "api::gone.gone", Fields: []string{"whatever"}},
		},
		{
			name: "unknown action passes through",
			rule: Rule{Action: "publish", Subject: article, Fields: []string{"x"}},
			want: Rule{Action: "publish", Subject: article, Fields: []string{"x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanPermissionFields([]Rule{tt.rule}, actions, opts)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestCleanPermissionFields_DropsParentOfSelectedChild(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, `
contentTypes:
  api::x.x:
    attributes:
      a: {type: component, component: c.ab}
components:
  c.ab:
    attributes:
      b: {type: string}
      c: {type: string}
`)
	actions := permission.NewStaticRegistry(permission.ActionDescriptor{ActionID: "read", ApplyToProperties: []string{"fields"}})

	got := CleanPermissionFields([]Rule{{Action: "read", Subject: "api::x.x", Fields: []string{"a.b", "a"}}}, actions, Options{Schema: s})
	assert.Equal(t, []string{"a.b"}, got[0].Fields)

	got = CleanPermissionFields([]Rule{{Action: "read", Subject: "api::x.x", Fields: []string{"a"}}}, actions, Options{Schema: s})
	assert.Equal(t, []string{"a"}, got[0].Fields)

	got = CleanPermissionFields([]Rule{{Action: "read", Subject: "api::x.x", Fields: []string{"a.c", "a.c", "a.b"}}}, actions, Options{Schema: s})
	assert.Equal(t, []string{"a.c", "a.b"}, got[0].Fields)
}

func TestCleanPermissionFields_AllFieldsRemovedStaysEmpty(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, `
contentTypes:
  api::post.post:
    attributes:
      title: {type: string}
`)
	actions := permission.NewStaticRegistry(permission.ActionDescriptor{ActionID: "read", ApplyToProperties: []string{"fields"}})

	got := CleanPermissionFields([]Rule{{Action: "read", Subject: "api::post.post", Fields: []string{"deleted"}}}, actions, Options{Schema: s})
	require.NotNil(t, got[0].Fields)
	assert.Empty(t, got[0].Fields)
	assert.False(t, NewRuleAbility(got...).Can("read", "api::post.post", "title"))
}

func TestRuleEncoding_KeepsEmptyFields(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Action: "read", Subject: "api::post.post", Fields: []string{}},
		{Action: "delete", Subject: "api::post.post"},
		{Action: "update", Subject: "api::post.post", Fields: []string{"title"}},
	}

	data, err := json.Marshal(rules)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"action":"read","subject":"api::post.post","fields":[]},
		{"action":"delete","subject":"api::post.post"},
		{"action":"update","subject":"api::post.post","fields":["title"]}
	]`, string(data))

	var fromJSON []Rule
	require.NoError(t, json.Unmarshal(data, &fromJSON))

	out, err := yaml.Marshal(rules)
	require.NoError(t, err)
	var fromYAML []Rule
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))

	for name, decoded := range map[string][]Rule{"json": fromJSON, "yaml": fromYAML} {
		require.Len(t, decoded, 3, name)
		assert.NotNil(t, decoded[0].Fields, name)
		assert.Empty(t, decoded[0].Fields, name)
		assert.Nil(t, decoded[1].Fields, name)
		assert.Equal(t, []string{"title"}, decoded[2].Fields, name)

		ability := NewRuleAbility(decoded...)
		assert.False(t, ability.Can("read", "api::post.post", "title"), name)
		assert.True(t, ability.Can("delete", "api::post.post", "title"), name)
	}
}

func TestRuleAbility(t *testing.T) {
	t.Parallel()

	ability := NewRuleAbility(
		Rule{Action: "create", Subject: article, Fields: []string{"title", "seo"}},
		Rule{Action: "read"},
	)

	assert.True(t, ability.Can("create", article, ""))
	assert.True(t, ability.Can("create", article, "title"))
	assert.True(t, ability.Can("create", article, "seo.metaTitle"))
	assert.False(t, ability.Can("create", article, "body"))
	assert.False(t, ability.Can("create", article, "titles"))
	assert.False(t, ability.Can("create", "api::other.other", "title"))
	assert.True(t, ability.Can("read", "api::other.other", "anything"))
	assert.False(t, ability.Can("delete", article, ""))
}

func TestPermittedFieldsAndSanitizeInput(t *testing.T) {
	t.Parallel()

	s := loadTestSchema(t, articleSchema)
	m := s.ContentType(article)
	opts := Options{Schema: s}
	ability := NewRuleAbility(Rule{Action: "create", Subject: article, Fields: []string{"title", "seo.metaTitle", "blocks.metaDescription"}})

	assert.Equal(t, []string{"title", "seo.metaTitle", "blocks.metaDescription"}, PermittedFields(ability, "create", m, opts))

	input := map[string]any{
		"id":    7,
		"title": "Hello",
		"body":  "dropped",
		"seo": map[string]any{
			"metaTitle":       "kept",
			"metaDescription": "dropped",
		},
		"blocks": []any{
			map[string]any{"metaTitle": "dropped", "metaDescription": "kept"},
		},
		"unknown": true,
	}

	got := SanitizeInput(ability, "create", m, opts, input)
	assert.Equal(t, map[string]any{
		"id":    7,
		"title": "Hello",
		"seo":   map[string]any{"metaTitle": "kept"},
		"blocks": []any{
			map[string]any{"metaDescription": "kept"},
		},
	}, got)

	assert.Equal(t, map[string]any{"id": 1}, SanitizeInput(ability, "delete", m, opts, map[string]any{"id": 1, "title": "x"}))
}
