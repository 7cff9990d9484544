package engine

import (
	"sort"

	"github.com/tinytelemetry/logdeck/internal/model"
)

type set map[string]struct{}

// add inserts v and reports whether it was new.
func (s set) add(v string) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type sourceSets struct {
	categories set
	tags       set
}

// index holds the derived metadata. It only grows between resets;
// eviction from the buffer never removes anything from it.
type index struct {
	sources    set
	categories set
	tags       set
	perSource  map[string]*sourceSets
}

func newIndex() index {
	return index{
		sources:    set{},
		categories: set{},
		tags:       set{},
		perSource:  map[string]*sourceSets{},
	}
}

func (ix *index) source(name string) (*sourceSets, bool) {
	ss, ok := ix.perSource[name]
	if !ok {
		ss = &sourceSets{categories: set{}, tags: set{}}
		ix.perSource[name] = ss
	}
	return ss, !ok
}

// add folds e into the index and reports whether any set grew.
func (ix *index) add(e model.Entry) bool {
	changed := ix.sources.add(e.Source)
	ss, created := ix.source(e.Source)
	changed = changed || created
	if cat, ok := e.CategoryValue(); ok {
		if ix.categories.add(cat) {
			changed = true
		}
		if ss.categories.add(cat) {
			changed = true
		}
	}
	for _, tag := range e.Tags {
		if ix.tags.add(tag) {
			changed = true
		}
		if ss.tags.add(tag) {
			changed = true
		}
	}
	return changed
}

// announce merges pre-declared sources and categories.
// Announced sources get an empty per-source aggregate.
func (ix *index) announce(sources, categories []string) bool {
	changed := false
	for _, src := range sources {
		if src == "" {
			continue
		}
		if ix.sources.add(src) {
			changed = true
		}
		if _, created := ix.source(src); created {
			changed = true
		}
	}
	for _, cat := range categories {
		if ix.categories.add(cat) {
			changed = true
		}
	}
	return changed
}

func (ix *index) snapshot() model.Metadata {
	meta := model.Metadata{
		Sources:    ix.sources.sorted(),
		Categories: ix.categories.sorted(),
		Tags:       ix.tags.sorted(),
		PerSource:  make(map[string]model.SourceMetadata, len(ix.perSource)),
	}
	for name, ss := range ix.perSource {
		meta.PerSource[name] = model.SourceMetadata{
			Categories: ss.categories.sorted(),
			Tags:       ss.tags.sorted(),
		}
	}
	return meta
}
