package attrs

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paulmach/osm"
	"gopkg.in/yaml.v3"
)

// Set is an ordered collection of key/value attributes with unique keys.
// It shares its representation with osm.Tags so OSM tags can be used directly.
type Set osm.Tags

// Transform maps one attribute set onto another, e.g. to flip directional
// attributes for an edge traversed against the line's direction.
type Transform func(Set) Set

// New builds a set from alternating key/value pairs. A trailing key without a
// value is ignored.
func New(kv ...string) Set {
	s := make(Set, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		s.AddOrReplace(kv[i], kv[i+1])
	}
	return s
}

// FromMap builds a set from a map. Keys are sorted so the result is deterministic.
func FromMap(m map[string]string) Set {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := make(Set, 0, len(keys))
	for _, k := range keys {
		s = append(s, osm.Tag{Key: k, Value: m[k]})
	}
	return s
}

// FromTags converts OSM tags into a set, keeping the last value for duplicate keys.
func FromTags(tags osm.Tags) Set {
	s := make(Set, 0, len(tags))
	for _, t := range tags {
		s.AddOrReplace(t.Key, t.Value)
	}
	return s
}

// Tags returns the set as osm.Tags
func (s Set) Tags() osm.Tags {
	return osm.Tags(s)
}

// Len returns the number of attributes
func (s Set) Len() int {
	return len(s)
}

func (s Set) index(key string) int {
	for i, t := range s {
		if t.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the value for key and whether it was present
func (s Set) Get(key string) (string, bool) {
	if i := s.index(key); i >= 0 {
		return s[i].Value, true
	}
	return "", false
}

// Has returns true if the key is present
func (s Set) Has(key string) bool {
	return s.index(key) >= 0
}

// Clone returns an independent copy
func (s Set) Clone() Set {
	if s == nil {
		return Set{}
	}
	c := make(Set, len(s))
	copy(c, s)
	return c
}

// AddOrReplace sets key to value. An existing key keeps its position.
func (s *Set) AddOrReplace(key, value string) {
	if i := s.index(key); i >= 0 {
		(*s)[i].Value = value
		return
	}
	*s = append(*s, osm.Tag{Key: key, Value: value})
}

// Merge adds or replaces every attribute of other, so other wins on collisions
func (s *Set) Merge(other Set) {
	for _, t := range other {
		s.AddOrReplace(t.Key, t.Value)
	}
}

// Remove deletes key and reports whether it was present
func (s *Set) Remove(key string) bool {
	i := s.index(key)
	if i < 0 {
		return false
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
	return true
}

// ContainsSame reports whether both sets hold exactly the same key/value pairs,
// regardless of order.
func (s Set) ContainsSame(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for _, t := range s {
		v, ok := other.Get(t.Key)
		if !ok || v != t.Value {
			return false
		}
	}
	return true
}

// Split routes every attribute to exactly one side: keys accepted by
// isProfileKey go to profile, everything else to meta. Order is preserved.
func (s Set) Split(isProfileKey func(string) bool) (profile, meta Set) {
	profile = Set{}
	meta = Set{}
	for _, t := range s {
		if isProfileKey(t.Key) {
			profile = append(profile, t)
		} else {
			meta = append(meta, t)
		}
	}
	return profile, meta
}

// Map returns the attributes as a map
func (s Set) Map() map[string]string {
	return osm.Tags(s).Map()
}

// sorted returns a copy ordered by key
func (s Set) sorted() Set {
	c := s.Clone()
	sort.Slice(c, func(i, j int) bool { return c[i].Key < c[j].Key })
	return c
}

// Digest returns a content digest that is identical for sets that
// ContainsSame each other. Keys and values are length-prefixed so no
// separator can collide with content.
func (s Set) Digest() [32]byte {
	h := sha256.New()
	for _, t := range s.sorted() {
		fmt.Fprintf(h, "%d:%s%d:%s", len(t.Key), t.Key, len(t.Value), t.Value)
	}
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// String renders the set as k=v pairs, for logging
func (s Set) String() string {
	b := make([]byte, 0, 16*len(s))
	b = append(b, '{')
	for i, t := range s {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, t.Key...)
		b = append(b, '=')
		b = append(b, t.Value...)
	}
	b = append(b, '}')
	return string(b)
}

// MarshalJSON encodes the set as a JSON object
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes a JSON object into the set, keys sorted
func (s *Set) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("attribute set must be a JSON object of strings: %w", err)
	}
	*s = FromMap(m)
	return nil
}

// UnmarshalYAML decodes a YAML mapping into the set, keeping document order
func (s *Set) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attribute set must be a mapping", value.Line)
	}
	out := make(Set, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: attribute %q must have a scalar value", v.Line, k.Value)
		}
		out.AddOrReplace(k.Value, v.Value)
	}
	*s = out
	return nil
}
