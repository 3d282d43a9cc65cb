package plugin

// Definition pairs metadata with an implementation for registration.
type Definition struct {
	Metadata       Metadata
	Implementation Implementation
}

// LoadResult is one plugin produced by a source. A non-nil Err marks a
// plugin that failed to load; the manager logs it and moves on.
type LoadResult struct {
	Metadata       Metadata
	Implementation Implementation
	Err            error
}

// Source yields plugins for registration. Implementations discover
// plugins somewhere (a directory of scripts, a static list, a remote
// catalog) and report each one as a LoadResult.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// LoadAll discovers and loads every plugin the source knows about.
	// One plugin failing to load must not prevent the others from
	// loading.
	LoadAll() []LoadResult
}

// StaticSource serves a fixed, in-process list of plugin definitions.
type StaticSource struct {
	name string
	defs []Definition
}

// NewStaticSource creates a source backed by a fixed definition list.
func NewStaticSource(name string, defs ...Definition) *StaticSource {
	return &StaticSource{name: name, defs: defs}
}

// Name identifies the source in logs.
func (s *StaticSource) Name() string { return s.name }

// LoadAll returns the configured definitions.
func (s *StaticSource) LoadAll() []LoadResult {
	results := make([]LoadResult, 0, len(s.defs))
	for _, def := range s.defs {
		results = append(results, LoadResult{
			Metadata:       def.Metadata,
			Implementation: def.Implementation,
		})
	}
	return results
}
