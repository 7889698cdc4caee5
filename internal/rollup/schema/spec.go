package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

type FieldKind string

const (
	KindString FieldKind = "string"
	KindDate   FieldKind = "date"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindBool   FieldKind = "bool"
)

// Field maps one raw source field onto a canonical domain field.
type Field struct {
	Name     string    `yaml:"name" json:"name" validate:"required"`
	Source   string    `yaml:"source,omitempty" json:"source,omitempty"`
	Kind     FieldKind `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=string date int float bool"`
	Required bool      `yaml:"required,omitempty" json:"required,omitempty"`
}

// SourceName is the raw field (possibly a dotted path) read from the source store.
func (f Field) SourceName() string {
	if s := strings.TrimSpace(f.Source); s != "" {
		return s
	}
	return f.Name
}

func (f Field) kind() FieldKind {
	if f.Kind == "" {
		return KindString
	}
	return f.Kind
}

// UnmarshalYAML accepts either a bare field name or a full mapping.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Name = strings.TrimSpace(node.Value)
		return nil
	}
	type plain Field
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

type ItemSpec struct {
	Key    Field   `yaml:"key" json:"key"`
	Fields []Field `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive"`
}

// Spec declares how one source type is grouped and mapped. Identity order is
// the order values are concatenated into the identity key.
type Spec struct {
	SourceType types.SourceType `yaml:"name" json:"name" validate:"required"`
	Identity   []Field          `yaml:"identity" json:"identity" validate:"required,min=1,dive"`
	Header     []Field          `yaml:"header,omitempty" json:"header,omitempty" validate:"dive"`
	Item       ItemSpec         `yaml:"item" json:"item"`
	Category   Field            `yaml:"category" json:"category"`
}

var validate = validator.New()

// Validate checks structure and that no two fields collide on either side of the mapping.
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("schema %q: %w", s.SourceType, err)
	}
	if strings.TrimSpace(s.Item.Key.Name) == "" {
		return fmt.Errorf("schema %q: item key is required", s.SourceType)
	}
	if strings.TrimSpace(s.Category.Name) == "" {
		return fmt.Errorf("schema %q: category field is required", s.SourceType)
	}
	groups := map[string][]Field{
		"header":   append(append([]Field{}, s.Identity...), s.Header...),
		"item":     append(append([]Field{s.Item.Key}, s.Identity...), s.Item.Fields...),
		"category": append([]Field{s.Category}, s.Identity...),
	}
	for view, fields := range groups {
		names := map[string]bool{}
		sources := map[string]bool{}
		for _, f := range fields {
			if f.Name == types.CountField || f.SourceName() == types.CountField {
				return fmt.Errorf("schema %q: field name %q is reserved", s.SourceType, types.CountField)
			}
			if names[f.Name] {
				return fmt.Errorf("schema %q: duplicate field %q in %s view", s.SourceType, f.Name, view)
			}
			if sources[f.SourceName()] {
				return fmt.Errorf("schema %q: duplicate source field %q in %s view", s.SourceType, f.SourceName(), view)
			}
			names[f.Name] = true
			sources[f.SourceName()] = true
		}
	}
	return nil
}

func (s Spec) IdentityNames() []string {
	out := make([]string, len(s.Identity))
	for i, f := range s.Identity {
		out[i] = f.Name
	}
	return out
}

func (s Spec) IdentitySources() []string {
	return sourceNames(s.Identity)
}

func sourceNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.SourceName()
	}
	return out
}
