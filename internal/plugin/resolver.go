package plugin

import "fmt"

// SortByDependencies orders records so that every plugin appears after all
// of its declared dependencies. Records are visited in input order, so the
// result is deterministic for a given registry snapshot.
//
// Cycles always fail with a CycleError, regardless of strict. A declared
// dependency absent from records fails with a MissingDependencyError when
// strict is true and is skipped otherwise.
func SortByDependencies(records []*Record, strict bool) ([]*Record, error) {
	s := newSorter(records, strict)
	for _, rec := range records {
		if err := s.visit(rec); err != nil {
			return nil, err
		}
	}
	return s.sorted, nil
}

// ResolveDependencies returns the ordered prerequisite chain for target,
// excluding target itself. Activating the chain in order, then target,
// satisfies every declared dependency present in records.
func ResolveDependencies(records []*Record, target string, strict bool) ([]*Record, error) {
	byID := indexByID(records)
	rec, exists := byID[target]
	if !exists {
		return nil, fmt.Errorf("plugin %q: %w", target, ErrPluginNotFound)
	}

	s := newSorter(records, strict)
	if err := s.visit(rec); err != nil {
		return nil, err
	}

	// The target is always appended last by the DFS.
	return s.sorted[:len(s.sorted)-1], nil
}

// DependenciesOf returns the dependency ids of rec, in declaration order and
// de-duplicated. When recursive is true the transitive closure is returned;
// dependencies absent from records are included but cannot be expanded.
func DependenciesOf(rec *Record, records []*Record, recursive bool) []string {
	byID := indexByID(records)
	seen := make(map[string]bool)
	var result []string

	var walk func(r *Record)
	walk = func(r *Record) {
		for _, dep := range r.Metadata.Dependencies {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			result = append(result, dep)
			if !recursive {
				continue
			}
			if depRec, exists := byID[dep]; exists {
				walk(depRec)
			}
		}
	}
	walk(rec)

	return result
}

// DependentsOf returns the ids of plugins declaring a dependency on id, in
// registry order. When recursive is true, plugins depending on those
// dependents are included as well.
func DependentsOf(id string, records []*Record, recursive bool) []string {
	seen := map[string]bool{id: true}
	var result []string

	pending := []string{id}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		for _, rec := range records {
			if seen[rec.ID()] || !dependsOn(rec, current) {
				continue
			}
			seen[rec.ID()] = true
			result = append(result, rec.ID())
			if recursive {
				pending = append(pending, rec.ID())
			}
		}
	}

	return result
}

func dependsOn(rec *Record, id string) bool {
	for _, dep := range rec.Metadata.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// sorter carries the DFS state for one sort or resolve pass.
type sorter struct {
	byID     map[string]*Record
	strict   bool
	visiting map[string]bool
	visited  map[string]bool
	sorted   []*Record
}

func newSorter(records []*Record, strict bool) *sorter {
	return &sorter{
		byID:     indexByID(records),
		strict:   strict,
		visiting: make(map[string]bool),
		visited:  make(map[string]bool),
		sorted:   make([]*Record, 0, len(records)),
	}
}

func (s *sorter) visit(rec *Record) error {
	id := rec.ID()
	if s.visited[id] {
		return nil
	}
	if s.visiting[id] {
		return &CycleError{PluginID: id}
	}
	s.visiting[id] = true

	for _, dep := range rec.Metadata.Dependencies {
		depRec, exists := s.byID[dep]
		if !exists {
			if s.strict {
				return &MissingDependencyError{Dependency: dep, RequiredBy: id}
			}
			continue
		}
		if err := s.visit(depRec); err != nil {
			return err
		}
	}

	delete(s.visiting, id)
	s.visited[id] = true
	s.sorted = append(s.sorted, rec)
	return nil
}

func indexByID(records []*Record) map[string]*Record {
	byID := make(map[string]*Record, len(records))
	for _, rec := range records {
		byID[rec.ID()] = rec
	}
	return byID
}
