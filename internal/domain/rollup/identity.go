package rollup

import (
	"fmt"
	"strings"
)

// KeySeparator joins identity values into an identity key. Values containing the
// separator or a backslash are escaped so distinct identities never collide.
const KeySeparator = "|"

// Identity is the ordered set of key fields that determines one composite record.
// Fields and Values are parallel slices in the source type's declared key order.
type Identity struct {
	Fields []string `json:"fields"`
	Values []string `json:"values"`
}

// IdentityFromRaw reads the key fields from a raw grouped record. Nil values become
// the empty string; a field that is not present in the record at all is an error.
func IdentityFromRaw(raw RawRecord, fields []string, sources []string) (Identity, error) {
	if len(sources) == 0 {
		sources = fields
	}
	if len(fields) != len(sources) {
		return Identity{}, fmt.Errorf("identity: %d fields but %d source names", len(fields), len(sources))
	}
	id := Identity{
		Fields: append([]string(nil), fields...),
		Values: make([]string, len(fields)),
	}
	for i, src := range sources {
		v, ok := raw[src]
		if !ok {
			return Identity{}, fmt.Errorf("%w: identity field %q", ErrMissingField, src)
		}
		id.Values[i] = KeyString(v)
	}
	return id, nil
}

// Key renders the identity key: values in declared order joined by KeySeparator.
func (i Identity) Key() string {
	return JoinKey(i.Values...)
}

// Map returns the identity as field -> value.
func (i Identity) Map() map[string]string {
	out := make(map[string]string, len(i.Fields))
	for idx, f := range i.Fields {
		if idx < len(i.Values) {
			out[f] = i.Values[idx]
		}
	}
	return out
}

func (i Identity) Equal(o Identity) bool {
	if len(i.Fields) != len(o.Fields) || len(i.Values) != len(o.Values) {
		return false
	}
	for idx := range i.Fields {
		if i.Fields[idx] != o.Fields[idx] {
			return false
		}
	}
	for idx := range i.Values {
		if i.Values[idx] != o.Values[idx] {
			return false
		}
	}
	return true
}

// JoinKey escapes and joins already-stringified key parts.
func JoinKey(parts ...string) string {
	var b strings.Builder
	for idx, p := range parts {
		if idx > 0 {
			b.WriteString(KeySeparator)
		}
		b.WriteString(escapeKeyPart(p))
	}
	return b.String()
}

// KeyString stringifies a grouped value for key computation. Nil is the empty string.
func KeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func escapeKeyPart(s string) string {
	if !strings.ContainsAny(s, `\|`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, KeySeparator, `\|`)
}
