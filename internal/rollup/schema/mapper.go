package schema

import (
	"fmt"
	"strings"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// Mapper turns raw grouped records of one source type into domain records.
type Mapper interface {
	SourceType() types.SourceType
	Spec() Spec
	MapHeader(raw types.RawRecord) (types.HeaderRecord, error)
	MapItem(raw types.RawRecord) (types.ItemizedEntity, error)
	MapCategory(raw types.RawRecord) (types.CategoryCount, error)
}

type specMapper struct {
	spec Spec
}

// NewMapper builds a Mapper driven entirely by spec.
func NewMapper(spec Spec) (Mapper, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &specMapper{spec: spec}, nil
}

func (m *specMapper) SourceType() types.SourceType { return m.spec.SourceType }

func (m *specMapper) Spec() Spec { return m.spec }

func (m *specMapper) identity(raw types.RawRecord) (types.Identity, error) {
	return types.IdentityFromRaw(raw, m.spec.IdentityNames(), m.spec.IdentitySources())
}

func (m *specMapper) MapHeader(raw types.RawRecord) (types.HeaderRecord, error) {
	id, err := m.identity(raw)
	if err != nil {
		return types.HeaderRecord{}, fmt.Errorf("map header: %w", err)
	}
	attrs, err := mapFields(raw, m.spec.Header)
	if err != nil {
		return types.HeaderRecord{}, fmt.Errorf("map header %q: %w", id.Key(), err)
	}
	return types.HeaderRecord{Identity: id, Attributes: attrs}, nil
}

func (m *specMapper) MapItem(raw types.RawRecord) (types.ItemizedEntity, error) {
	id, err := m.identity(raw)
	if err != nil {
		return types.ItemizedEntity{}, fmt.Errorf("map item: %w", err)
	}
	name, err := groupValue(raw, m.spec.Item.Key)
	if err != nil {
		return types.ItemizedEntity{}, fmt.Errorf("map item %q: %w", id.Key(), err)
	}
	count, err := countOf(raw)
	if err != nil {
		return types.ItemizedEntity{}, fmt.Errorf("map item %q/%q: %w", id.Key(), name, err)
	}
	attrs, err := mapFields(raw, m.spec.Item.Fields)
	if err != nil {
		return types.ItemizedEntity{}, fmt.Errorf("map item %q/%q: %w", id.Key(), name, err)
	}
	item := types.ItemizedEntity{Identity: id, Name: name, Count: count, Attributes: attrs}
	if err := validate.Struct(item); err != nil {
		return types.ItemizedEntity{}, fmt.Errorf("%w: item %q/%q: %v", types.ErrInvalidField, id.Key(), name, err)
	}
	return item, nil
}

func (m *specMapper) MapCategory(raw types.RawRecord) (types.CategoryCount, error) {
	id, err := m.identity(raw)
	if err != nil {
		return types.CategoryCount{}, fmt.Errorf("map category: %w", err)
	}
	category, err := groupValue(raw, m.spec.Category)
	if err != nil {
		return types.CategoryCount{}, fmt.Errorf("map category %q: %w", id.Key(), err)
	}
	count, err := countOf(raw)
	if err != nil {
		return types.CategoryCount{}, fmt.Errorf("map category %q/%q: %w", id.Key(), category, err)
	}
	cat := types.CategoryCount{Identity: id, Category: category, Count: count}
	if err := validate.Struct(cat); err != nil {
		return types.CategoryCount{}, fmt.Errorf("%w: category %q/%q: %v", types.ErrInvalidField, id.Key(), category, err)
	}
	return cat, nil
}

// groupValue reads a group-by sub-key. Like identity fields it must be present,
// and nil groups as the empty string.
func groupValue(raw types.RawRecord, f Field) (string, error) {
	v, ok := raw[f.SourceName()]
	if !ok {
		return "", fmt.Errorf("%w: %q", types.ErrMissingField, f.SourceName())
	}
	return types.KeyString(v), nil
}

func countOf(raw types.RawRecord) (int64, error) {
	v, ok := raw[types.CountField]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %q", types.ErrMissingField, types.CountField)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", types.ErrInvalidField, err)
	}
	return n, nil
}

// mapFields converts descriptive fields. Optional fields may be absent or nil.
// Required fields must be present, non-nil and, for strings, non-blank; false
// and zero are values.
func mapFields(raw types.RawRecord, fields []Field) (types.Attributes, error) {
	attrs := make(types.Attributes, len(fields))
	for _, f := range fields {
		v, ok := raw[f.SourceName()]
		if f.Required {
			if !ok {
				return nil, fmt.Errorf("%w: %q", types.ErrMissingField, f.SourceName())
			}
			if isBlank(v) {
				return nil, fmt.Errorf("%w: %q is empty", types.ErrMissingField, f.SourceName())
			}
		}
		converted, err := convert(f, v)
		if err != nil {
			return nil, err
		}
		attrs[f.Name] = converted
	}
	return attrs, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	default:
		return false
	}
}
