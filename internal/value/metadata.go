package value

import (
	"fmt"
	"sort"

	"github.com/roach88/ledger/internal/ident"
)

// Metadata is an immutable key-value map.
//
// Set and Remove return a new Metadata and leave the receiver untouched,
// so a Metadata captured in a snapshot never changes afterwards.
// The zero value is empty and ready to use.
type Metadata struct {
	m map[ident.Name]Value
}

// NewMetadata builds Metadata from a map. The map is copied.
func NewMetadata(m map[ident.Name]Value) Metadata {
	if len(m) == 0 {
		return Metadata{}
	}
	cp := make(map[ident.Name]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Metadata{m: cp}
}

// Get returns the value stored under key.
func (md Metadata) Get(key ident.Name) (Value, bool) {
	v, ok := md.m[key]
	return v, ok
}

// Len returns the number of entries.
func (md Metadata) Len() int { return len(md.m) }

// Set returns a copy of md with key bound to v.
func (md Metadata) Set(key ident.Name, v Value) Metadata {
	cp := make(map[ident.Name]Value, len(md.m)+1)
	for k, old := range md.m {
		cp[k] = old
	}
	cp[key] = v
	return Metadata{m: cp}
}

// Remove returns a copy of md without key. ok is false when key was absent.
func (md Metadata) Remove(key ident.Name) (out Metadata, removed Value, ok bool) {
	removed, ok = md.m[key]
	if !ok {
		return md, nil, false
	}
	if len(md.m) == 1 {
		return Metadata{}, removed, true
	}
	cp := make(map[ident.Name]Value, len(md.m)-1)
	for k, v := range md.m {
		if k != key {
			cp[k] = v
		}
	}
	return Metadata{m: cp}, removed, true
}

// Keys returns the keys in canonical order.
func (md Metadata) Keys() []ident.Name {
	keys := make([]ident.Name, 0, len(md.m))
	for k := range md.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return compareUTF16(keys[i].String(), keys[j].String()) < 0 })
	return keys
}

// Object returns md as an Object value.
func (md Metadata) Object() Object {
	obj := make(Object, len(md.m))
	for k, v := range md.m {
		obj[k.String()] = v
	}
	return obj
}

// Equal reports whether md and o hold the same entries.
func (md Metadata) Equal(o Metadata) bool {
	return Equal(md.Object(), o.Object())
}

// MarshalJSON encodes md as a canonical JSON object.
func (md Metadata) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(md.Object())
}

// UnmarshalJSON decodes a JSON object. Keys must be valid Names.
func (md *Metadata) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("metadata: expected object, got %s", string(data))
	}
	out, err := MetadataFromObject(obj)
	if err != nil {
		return err
	}
	*md = out
	return nil
}

// UnmarshalYAML lets yaml.v3 decode a mapping into Metadata.
func (md *Metadata) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := FromAny(ToStringMaps(raw))
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	out, err := MetadataFromObject(v.(Object))
	if err != nil {
		return err
	}
	*md = out
	return nil
}

// MetadataFromObject converts an Object, validating each key as a Name.
func MetadataFromObject(obj Object) (Metadata, error) {
	m := make(map[ident.Name]Value, len(obj))
	for k, v := range obj {
		name, err := ident.ParseName(k)
		if err != nil {
			return Metadata{}, fmt.Errorf("metadata key: %w", err)
		}
		m[name] = v
	}
	return NewMetadata(m), nil
}

// ToStringMaps rewrites the map[any]any that YAML can produce for nested
// mappings into map[string]any, recursively.
func ToStringMaps(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToStringMaps(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = ToStringMaps(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToStringMaps(e)
		}
		return out
	default:
		return v
	}
}
