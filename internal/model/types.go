package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Level is the ordinal severity of an entry.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// AllLevels lists every level in ordinal order.
var AllLevels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int8(l))
	}
}

// Short returns the three-letter console form (DBG/INF/WRN/ERR).
func (l Level) Short() string {
	switch l {
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarn:
		return "WRN"
	case LevelError:
		return "ERR"
	default:
		return "???"
	}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= LevelDebug && l <= LevelError
}

// ParseLevel accepts the canonical and short level names, case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "DBG":
		return LevelDebug, true
	case "INFO", "INF":
		return LevelInfo, true
	case "WARN", "WRN":
		return LevelWarn, true
	case "ERROR", "ERR":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("model: invalid level %d", int8(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, ok := ParseLevel(string(text))
	if !ok {
		return fmt.Errorf("model: unknown level %q", string(text))
	}
	*l = parsed
	return nil
}

// Entry is one normalized log event. Entries are never mutated once ingested.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Source    string
	Category  *string // nil = no category
	Message   string
	Caller    *string // nil = no caller
	Tags      []string
	Fields    Fields
}

// CategoryValue returns the category and whether one is present.
func (e Entry) CategoryValue() (string, bool) {
	if e.Category == nil {
		return "", false
	}
	return *e.Category, true
}

// CallerValue returns the caller locator and whether one is present.
func (e Entry) CallerValue() (string, bool) {
	if e.Caller == nil {
		return "", false
	}
	return *e.Caller, true
}

// HasTag reports whether the entry carries tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// entryDoc is the wire shape of an entry. It is also a valid EntryDoc for the
// socket protocol, so entries read back from the API can be re-announced.
type entryDoc struct {
	TS       int64    `json:"ts"`
	Level    Level    `json:"lvl"`
	Source   string   `json:"src"`
	Category *string  `json:"cat,omitempty"`
	Message  string   `json:"msg"`
	Caller   *string  `json:"caller,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Fields   *Fields  `json:"fields,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	doc := entryDoc{
		TS:       e.Timestamp.UnixMilli(),
		Level:    e.Level,
		Source:   e.Source,
		Category: e.Category,
		Message:  e.Message,
		Caller:   e.Caller,
		Tags:     e.Tags,
	}
	if e.Fields.Len() > 0 {
		fields := e.Fields
		doc.Fields = &fields
	}
	return json.Marshal(doc)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var doc entryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*e = Entry{
		Timestamp: time.UnixMilli(doc.TS),
		Level:     doc.Level,
		Source:    doc.Source,
		Category:  doc.Category,
		Message:   doc.Message,
		Caller:    doc.Caller,
		Tags:      doc.Tags,
	}
	if doc.Fields != nil {
		e.Fields = *doc.Fields
	}
	return nil
}
