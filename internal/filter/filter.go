// Package filter evaluates entries against the three-tier view filter:
// a source/category gate (flat or hierarchical), a level gate, a tag gate
// and a case-insensitive search gate.
package filter

import (
	"sort"
	"strings"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// Spec is the serializable form of a filter. It is what the API, the RPC
// socket and preset files exchange. Compile turns it into a Filter.
type Spec struct {
	Levels     []model.Level  `json:"levels,omitempty" yaml:"levels,omitempty"`
	Tags       []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Search     string         `json:"search,omitempty" yaml:"search,omitempty"`
	Sources    []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	Categories []string       `json:"categories,omitempty" yaml:"categories,omitempty"`
	Selection  *SelectionSpec `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// SelectionSpec is the hierarchical source selection. When present on a
// Spec it replaces the flat Sources and Categories entirely.
type SelectionSpec struct {
	Sources       []string                    `json:"sources,omitempty" yaml:"sources,omitempty"`
	SourceFilters map[string]SourceFilterSpec `json:"source_filters,omitempty" yaml:"source_filters,omitempty"`
}

// SourceFilterSpec restricts one source by category and tag.
type SourceFilterSpec struct {
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type stringSet map[string]struct{}

func newStringSet(values []string) stringSet {
	if len(values) == 0 {
		return nil
	}
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s stringSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s stringSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// anyOf reports whether any of tags is in s.
func (s stringSet) anyOf(tags []string) bool {
	for _, t := range tags {
		if s.has(t) {
			return true
		}
	}
	return false
}

const allLevels uint8 = 1<<(uint(model.LevelError)+1) - 1

type sourceFilter struct {
	categories stringSet
	tags       stringSet
}

type selection struct {
	sources stringSet
	filters map[string]sourceFilter
}

// Filter is an immutable, compiled filter. A nil *Filter matches everything.
type Filter struct {
	levels     uint8
	tags       stringSet
	search     string // lower-cased
	rawSearch  string
	sources    stringSet
	categories stringSet
	selection  *selection
}

var identity = &Filter{levels: allLevels}

// Identity returns the shared filter that matches every entry.
func Identity() *Filter { return identity }

// Compile builds an immutable Filter from s.
// An empty level list is treated as every level.
func (s Spec) Compile() *Filter {
	f := &Filter{
		tags:       newStringSet(s.Tags),
		search:     strings.ToLower(s.Search),
		rawSearch:  s.Search,
		sources:    newStringSet(s.Sources),
		categories: newStringSet(s.Categories),
	}
	for _, l := range s.Levels {
		if l.Valid() {
			f.levels |= 1 << uint(l)
		}
	}
	if f.levels == 0 {
		f.levels = allLevels
	}
	if s.Selection != nil {
		sel := &selection{sources: newStringSet(s.Selection.Sources)}
		for src, sf := range s.Selection.SourceFilters {
			compiled := sourceFilter{
				categories: newStringSet(sf.Categories),
				tags:       newStringSet(sf.Tags),
			}
			if compiled.categories == nil && compiled.tags == nil {
				continue
			}
			if sel.filters == nil {
				sel.filters = make(map[string]sourceFilter)
			}
			sel.filters[src] = compiled
		}
		f.selection = sel
	}
	return f
}

// Spec returns the serializable form of f with sorted collections.
func (f *Filter) Spec() Spec {
	if f == nil {
		return Spec{}
	}
	s := Spec{
		Tags:       f.tags.sorted(),
		Search:     f.rawSearch,
		Sources:    f.sources.sorted(),
		Categories: f.categories.sorted(),
	}
	if f.levels != allLevels {
		for _, l := range model.AllLevels {
			if f.levels&(1<<uint(l)) != 0 {
				s.Levels = append(s.Levels, l)
			}
		}
	}
	if f.selection != nil {
		sel := &SelectionSpec{Sources: f.selection.sources.sorted()}
		for src, sf := range f.selection.filters {
			if sel.SourceFilters == nil {
				sel.SourceFilters = make(map[string]SourceFilterSpec)
			}
			sel.SourceFilters[src] = SourceFilterSpec{
				Categories: sf.categories.sorted(),
				Tags:       sf.tags.sorted(),
			}
		}
		s.Selection = sel
	}
	return s
}

// IsIdentity reports whether f matches every entry, so callers can skip evaluation.
func (f *Filter) IsIdentity() bool {
	if f == nil {
		return true
	}
	if f.levels != allLevels || f.tags != nil || f.search != "" {
		return false
	}
	if f.selection != nil {
		return f.selection.sources == nil && len(f.selection.filters) == 0
	}
	return f.sources == nil && f.categories == nil
}

// AdmitsLevel reports whether the level gate passes l.
func (f *Filter) AdmitsLevel(l model.Level) bool {
	if f == nil {
		return true
	}
	return l.Valid() && f.levels&(1<<uint(l)) != 0
}

// Matches evaluates e against f. Gates run in order and the first failing
// gate rejects: source/category, level, tag, search.
func (f *Filter) Matches(e model.Entry) bool {
	if f == nil {
		return true
	}
	if !f.matchSource(e) {
		return false
	}
	if !f.AdmitsLevel(e.Level) {
		return false
	}
	if f.tags != nil && !f.tags.anyOf(e.Tags) {
		return false
	}
	if f.search != "" && !f.matchSearch(e) {
		return false
	}
	return true
}

func (f *Filter) matchSource(e model.Entry) bool {
	cat, hasCat := e.CategoryValue()

	if sel := f.selection; sel != nil {
		if sel.sources != nil && !sel.sources.has(e.Source) {
			return false
		}
		sf, ok := sel.filters[e.Source]
		if !ok {
			return true
		}
		if sf.categories != nil && (!hasCat || !sf.categories.has(cat)) {
			return false
		}
		if sf.tags != nil && !sf.tags.anyOf(e.Tags) {
			return false
		}
		return true
	}

	if f.sources != nil && !f.sources.has(e.Source) {
		return false
	}
	if f.categories != nil && (!hasCat || !f.categories.has(cat)) {
		return false
	}
	return true
}

func (f *Filter) matchSearch(e model.Entry) bool {
	if strings.Contains(strings.ToLower(e.Message), f.search) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Source), f.search) {
		return true
	}
	if cat, ok := e.CategoryValue(); ok && strings.Contains(strings.ToLower(cat), f.search) {
		return true
	}
	return false
}

// Apply returns the entries of batch that f matches, in order.
// The identity filter returns batch itself.
func (f *Filter) Apply(batch []model.Entry) []model.Entry {
	if f.IsIdentity() {
		return batch
	}
	out := make([]model.Entry, 0, len(batch))
	for _, e := range batch {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
