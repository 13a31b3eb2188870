package typeanalysis

import (
	"sort"

	"github.com/speakeasy-api/blockjit"
	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"github.com/speakeasy-api/openapi/sequencedmap"
	"gopkg.in/yaml.v3"
)

// TypeSchema renders a StaticType as a JSON Schema. Unknown is the empty
// schema, a single type is {type: T} and a union is anyOf its members.
func TypeSchema(t blockjit.StaticType) *oas3.Schema {
	if t.IsUnknown() {
		return &oas3.Schema{}
	}
	var members []*oas3.Schema
	for _, m := range []struct {
		t   blockjit.StaticType
		typ oas3.SchemaType
	}{
		{blockjit.Number, oas3.SchemaTypeNumber},
		{blockjit.Bool, oas3.SchemaTypeBoolean},
		{blockjit.String, oas3.SchemaTypeString},
	} {
		if t.Contains(m.t) {
			members = append(members, &oas3.Schema{Type: oas3.NewTypeFromString(m.typ)})
		}
	}
	if len(members) == 1 {
		return members[0]
	}
	anyOf := make([]*oas3.JSONSchema[oas3.Referenceable], len(members))
	for i, s := range members {
		anyOf[i] = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](s)
	}
	return &oas3.Schema{AnyOf: anyOf}
}

// Schema describes the variables of an analysed script as an object schema
// with one property per variable, typed by the values the script stores in it.
// A variable that is never written gets the empty schema.
func (r *Result) Schema() *oas3.Schema {
	props := sequencedmap.New[string, *oas3.JSONSchema[oas3.Referenceable]]()
	names := make([]string, 0, len(r.Variables))
	byName := make(map[string]VariableSummary, len(r.Variables))
	for _, v := range r.Variables {
		name := v.Variable.String()
		if _, dup := byName[name]; !dup {
			names = append(names, name)
		}
		byName[name] = v
	}
	sort.Strings(names)
	for _, name := range names {
		v := byName[name]
		t := blockjit.Unknown
		if v.Writes > 0 {
			t = v.Stored
		}
		props.Set(name, oas3.NewJSONSchemaFromSchema[oas3.Referenceable](TypeSchema(t)))
	}
	return &oas3.Schema{
		Type:       oas3.NewTypeFromString(oas3.SchemaTypeObject),
		Properties: props,
	}
}

// SchemaNode converts the subset of JSON Schema produced by this package
// (type, anyOf, properties) to a YAML node.
func SchemaNode(s *oas3.Schema) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	if s == nil {
		return node
	}
	if types := s.GetType(); len(types) == 1 {
		node.Content = append(node.Content, scalar("type"), scalar(string(types[0])))
	}
	if len(s.AnyOf) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, branch := range s.AnyOf {
			if branch != nil && branch.Left != nil {
				seq.Content = append(seq.Content, SchemaNode(branch.Left))
			}
		}
		node.Content = append(node.Content, scalar("anyOf"), seq)
	}
	if s.Properties != nil {
		props := &yaml.Node{Kind: yaml.MappingNode}
		for name, prop := range s.Properties.All() {
			if prop == nil || prop.Left == nil {
				continue
			}
			props.Content = append(props.Content, scalar(name), SchemaNode(prop.Left))
		}
		node.Content = append(node.Content, scalar("properties"), props)
	}
	return node
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
