package model

// SourceMetadata is the sorted snapshot of categories and tags seen for one source.
type SourceMetadata struct {
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// Metadata is an immutable snapshot of every index the engine maintains.
type Metadata struct {
	Sources    []string                  `json:"sources"`
	Categories []string                  `json:"categories"`
	Tags       []string                  `json:"tags"`
	PerSource  map[string]SourceMetadata `json:"per_source"`
}

// Empty reports whether the snapshot carries no indexed values.
func (m Metadata) Empty() bool {
	return len(m.Sources) == 0 && len(m.Categories) == 0 && len(m.Tags) == 0
}

// EmptyMetadata returns a snapshot with non-nil empty collections.
func EmptyMetadata() Metadata {
	return Metadata{
		Sources:    []string{},
		Categories: []string{},
		Tags:       []string{},
		PerSource:  map[string]SourceMetadata{},
	}
}
