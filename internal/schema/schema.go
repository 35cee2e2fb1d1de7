// Package schema loads entity type declarations from YAML into a
// types.Registry.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// FileName is the default entity definition file name.
const FileName = "entities.yaml"

// DocumentYAML is the entity definition file.
type DocumentYAML struct {
	Entities []EntityYAML `yaml:"entities"`
}

// EntityYAML declares one entity type.
type EntityYAML struct {
	Name    string                  `yaml:"name"`
	Table   string                  `yaml:"table"`
	Fields  []FieldYAML             `yaml:"fields,omitempty"`
	Rules   map[string][]RuleYAML   `yaml:"rules,omitempty"`
	Filters map[string][]FilterYAML `yaml:"filters,omitempty"`
}

// FieldYAML declares a column and its kind. An empty kind means any.
type FieldYAML struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind,omitempty"`
}

// RuleYAML binds a validation rule to a field.
type RuleYAML struct {
	Rule string `yaml:"rule"`
	Args []any  `yaml:"args,omitempty"`
}

// FilterYAML binds a filter to a field, or to every field under "*".
type FilterYAML struct {
	Filter string `yaml:"filter"`
	Args   []any  `yaml:"args,omitempty"`
}

// LoadYAML reads entity definitions from path.
func LoadYAML(path string) (*types.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity definitions: %w", err)
	}
	reg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ParseYAML builds a registry from YAML bytes.
func ParseYAML(data []byte) (*types.Registry, error) {
	var doc DocumentYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entity definitions: %w", err)
	}
	return doc.Registry()
}

// Registry converts the document into a registry.
func (d *DocumentYAML) Registry() (*types.Registry, error) {
	reg := types.NewRegistry()
	for _, ey := range d.Entities {
		if err := reg.Register(ey.entityType()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (ey EntityYAML) entityType() types.EntityType {
	t := types.EntityType{Name: ey.Name, Table: ey.Table}
	for _, f := range ey.Fields {
		kind := types.Kind(f.Kind)
		if kind == "" {
			kind = types.KindAny
		}
		t.Fields = append(t.Fields, types.FieldSpec{Name: f.Name, Kind: kind})
	}
	if len(ey.Rules) > 0 {
		t.Rules = make(map[string][]types.RuleSpec, len(ey.Rules))
		for field, rules := range ey.Rules {
			for _, r := range rules {
				t.Rules[field] = append(t.Rules[field], types.RuleSpec{Name: r.Rule, Args: r.Args})
			}
		}
	}
	if len(ey.Filters) > 0 {
		t.Filters = make(map[string][]types.FilterSpec, len(ey.Filters))
		for field, filters := range ey.Filters {
			for _, f := range filters {
				t.Filters[field] = append(t.Filters[field], types.FilterSpec{Name: f.Filter, Args: f.Args})
			}
		}
	}
	return t
}

// Sample returns a starter document written by the init command.
func Sample() DocumentYAML {
	return DocumentYAML{Entities: []EntityYAML{{
		Name:  "group",
		Table: "groups",
		Fields: []FieldYAML{
			{Name: types.IDField, Kind: string(types.KindInt)},
			{Name: "name", Kind: string(types.KindString)},
		},
		Rules: map[string][]RuleYAML{
			"name": {
				{Rule: "not_empty"},
				{Rule: "min_length", Args: []any{types.PlaceholderValue, 4}},
			},
		},
		Filters: map[string][]FilterYAML{
			types.WildcardField: {{Filter: "trim"}},
		},
	}}}
}

// SampleDDL creates the table declared by Sample. It is valid for both
// SQLite and Postgres apart from the id column type.
func SampleDDL(backend string) string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if backend == types.BackendPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return "CREATE TABLE IF NOT EXISTS groups (\n    id " + id + ",\n    name TEXT NOT NULL\n);\n"
}

// WriteYAML writes doc to path.
func WriteYAML(path string, doc DocumentYAML) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal entity definitions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write entity definitions: %w", err)
	}
	return nil
}
