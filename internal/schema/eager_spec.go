package schema

import (
	"fmt"
	"sort"
)

// EagerSpec is a nested request describing which associations (and their
// own sub-associations) to load. A nil branch is a leaf: no further
// cascading under that association.
//
// EagerSpec values are immutable; Merge returns a new spec and never
// mutates its receiver, so composing eager calls on cloned queries cannot
// affect previously returned query values.
type EagerSpec struct {
	branches map[string]*EagerSpec
}

// NewEagerSpec builds a spec from caller arguments. Each argument is an
// association name, a map of association name to nested argument, a slice
// of either, or another *EagerSpec. Anything else fails with
// ErrMalformedEagerArgument.
func NewEagerSpec(args ...any) (*EagerSpec, error) {
	spec := &EagerSpec{}
	for _, arg := range args {
		parsed, err := eagerSpecFromArg(arg)
		if err != nil {
			return nil, err
		}
		spec = spec.Merge(parsed)
	}
	return spec, nil
}

func eagerSpecFromArg(arg any) (*EagerSpec, error) {
	switch v := arg.(type) {
	case string:
		return &EagerSpec{branches: map[string]*EagerSpec{v: nil}}, nil
	case map[string]any:
		branches := make(map[string]*EagerSpec, len(v))
		for name, nested := range v {
			if nested == nil {
				branches[name] = nil
				continue
			}
			sub, err := eagerSpecFromArg(nested)
			if err != nil {
				return nil, err
			}
			branches[name] = sub
		}
		return &EagerSpec{branches: branches}, nil
	case []any:
		return NewEagerSpec(v...)
	case *EagerSpec:
		if v == nil {
			return &EagerSpec{}, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrMalformedEagerArgument, arg)
	}
}

// Merge unions two specs into a new one. Branches present in both have
// their nested specs merged recursively.
func (s *EagerSpec) Merge(other *EagerSpec) *EagerSpec {
	if other.IsEmpty() {
		return s.orEmpty()
	}
	if s.IsEmpty() {
		return other
	}
	branches := make(map[string]*EagerSpec, len(s.branches)+len(other.branches))
	for name, nested := range s.branches {
		branches[name] = nested
	}
	for name, nested := range other.branches {
		if existing, ok := branches[name]; ok {
			branches[name] = existing.mergeBranch(nested)
		} else {
			branches[name] = nested
		}
	}
	return &EagerSpec{branches: branches}
}

// mergeBranch merges nested branch values where nil means leaf.
func (s *EagerSpec) mergeBranch(other *EagerSpec) *EagerSpec {
	if s == nil {
		return other
	}
	if other == nil {
		return s
	}
	return s.Merge(other)
}

// Branch returns the nested spec under the named association; nil for a
// leaf or missing branch.
func (s *EagerSpec) Branch(name string) *EagerSpec {
	if s == nil {
		return nil
	}
	return s.branches[name]
}

// Names returns the requested association names in sorted order, for
// deterministic fetch and alias allocation order.
func (s *EagerSpec) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.branches))
	for name := range s.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the spec requests no associations.
func (s *EagerSpec) IsEmpty() bool {
	return s == nil || len(s.branches) == 0
}

func (s *EagerSpec) orEmpty() *EagerSpec {
	if s == nil {
		return &EagerSpec{}
	}
	return s
}
