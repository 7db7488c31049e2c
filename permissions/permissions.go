// Package permissions evaluates permission requirements against a held
// permission set. Permission keys are opaque dot-namespaced strings
// ("posts.write", "blacklist.remove") granted wholesale by the backend;
// matching is exact string equality with no wildcard or hierarchy semantics.
// Everything here is pure and allocation-light so checks can run per render.
package permissions

import (
	"encoding/json"
	"sort"
)

// Set is an unordered collection of permission keys.
type Set map[string]struct{}

// NewSet builds a Set from the given keys, discarding duplicates.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is a member of the set.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the members in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the set. A nil set clones to nil.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// MarshalJSON renders the set as a sorted JSON array, matching the wire shape
// the backend uses for the permissions field.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON accepts a JSON array of keys. null decodes to an empty set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewSet(keys...)
	return nil
}

// Mode selects the quantifier applied over a requirement's keys.
type Mode string

const (
	// ModeAll requires every key to be held.
	ModeAll Mode = "all"
	// ModeAny requires at least one key to be held.
	ModeAny Mode = "any"
)

// Requirement is a declarative permission gate attached to a view or action.
type Requirement struct {
	Keys Set
	Mode Mode
}

// Satisfied evaluates the requirement against a held set and owner flag.
// An unrecognized Mode is treated as ModeAll, the stricter quantifier.
func (r Requirement) Satisfied(owned Set, isOwner bool) bool {
	if r.Mode == ModeAny {
		return HasAny(r.Keys, owned, isOwner)
	}
	return HasAll(r.Keys, owned, isOwner)
}

// HasAll reports whether every required key is held. Owners pass
// unconditionally, and an empty requirement is always satisfied.
func HasAll(required, owned Set, isOwner bool) bool {
	if isOwner || len(required) == 0 {
		return true
	}
	for k := range required {
		if !owned.Has(k) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one required key is held. Owners pass
// unconditionally, and an empty requirement is always satisfied.
func HasAny(required, owned Set, isOwner bool) bool {
	if isOwner || len(required) == 0 {
		return true
	}
	for k := range required {
		if owned.Has(k) {
			return true
		}
	}
	return false
}
