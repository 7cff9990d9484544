package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/logdeck/internal/logparse"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// MarkerKey is set by logdeck-aware emitters on structured documents.
// It never becomes a field.
const MarkerKey = "_logdeck"

// reservedKeys are top-level document keys that are never harvested as fields.
var reservedKeys = map[string]struct{}{
	"ts": {}, "time": {}, "level": {}, "lvl": {}, "src": {}, "cat": {},
	"msg": {}, "message": {}, "caller": {}, "tags": {}, "fields": {},
	MarkerKey: {},
}

// DecodeError reports a document that could not be turned into an entry.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: decode entry: %s: %v", e.Reason, e.Err)
	}
	return "ingest: decode entry: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrNotObject is wrapped by DecodeError when a document is not a JSON object.
var ErrNotObject = errors.New("document is not an object")

// Decoder turns structured documents into entries. Now supplies the
// ingestion time used when a document has no usable timestamp.
type Decoder struct {
	Now func() time.Time
}

// DecodeStructured decodes one JSON entry document with the default decoder.
func DecodeStructured(raw []byte) (model.Entry, error) {
	return Decoder{}.DecodeStructured(raw)
}

// DecodeValue decodes an already parsed entry document with the default decoder.
func DecodeValue(doc model.Value) (model.Entry, error) {
	return Decoder{}.DecodeValue(doc)
}

// DecodeStructured parses raw as JSON and decodes it as an entry document.
func (d Decoder) DecodeStructured(raw []byte) (model.Entry, error) {
	doc, err := model.ParseJSONValue(raw)
	if err != nil {
		return model.Entry{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	return d.DecodeValue(doc)
}

// DecodeValue decodes a parsed document.
func (d Decoder) DecodeValue(doc model.Value) (model.Entry, error) {
	obj, ok := doc.AsMap()
	if !ok {
		return model.Entry{}, &DecodeError{Reason: doc.Kind().String(), Err: ErrNotObject}
	}

	entry := model.Entry{
		Timestamp: d.extractTimestamp(obj),
		Level:     extractLevel(obj),
		Source:    ExtractStringField(obj, "src"),
		Message:   ExtractStringField(obj, "msg", "message"),
	}
	if entry.Source == "" {
		entry.Source = model.DefaultSource
	}
	if cat, ok := stringField(obj, "cat"); ok {
		entry.Category = model.StringPtr(cat)
	}
	if caller, ok := stringField(obj, "caller"); ok {
		entry.Caller = model.StringPtr(caller)
	}
	entry.Tags = extractTags(obj)
	entry.Fields = extractFields(obj)
	return entry, nil
}

func (d Decoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// extractTimestamp prefers epoch millis in "ts" over an RFC3339 "time".
func (d Decoder) extractTimestamp(obj model.Fields) time.Time {
	if v, ok := obj.Get("ts"); ok {
		if ms, ok := epochMillis(v); ok {
			return time.UnixMilli(ms)
		}
	}
	if v, ok := obj.Get("time"); ok {
		if s, ok := v.AsString(); ok {
			if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
				return ts
			}
		}
	}
	return d.now()
}

func epochMillis(v model.Value) (int64, bool) {
	if n, ok := v.AsInt(); ok {
		return n, true
	}
	if f, ok := v.AsFloat(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f), true
	}
	if s, ok := v.AsString(); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// extractLevel reads "lvl" then "level". Only a missing level yields the INFO default.
func extractLevel(obj model.Fields) model.Level {
	for _, key := range []string{"lvl", "level"} {
		v, ok := obj.Get(key)
		if !ok || v.IsNull() {
			continue
		}
		if n, ok := v.AsInt(); ok {
			return logparse.PinoLevel(int(n))
		}
		if s, ok := v.AsString(); ok && strings.TrimSpace(s) != "" {
			level, _ := logparse.NormalizeLevel(s)
			return level
		}
	}
	return model.LevelInfo
}

func extractTags(obj model.Fields) []string {
	v, ok := obj.Get("tags")
	if !ok {
		return nil
	}
	if s, ok := v.AsString(); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	items, ok := v.AsArray()
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsNull() {
			continue
		}
		tags = append(tags, item.Text())
	}
	return tags
}

// extractFields merges the nested "fields" object with top-level extras.
// The nested object is applied first, so it wins on key collision.
func extractFields(obj model.Fields) model.Fields {
	var fields model.Fields
	if nested, ok := obj.Get("fields"); ok {
		if m, ok := nested.AsMap(); ok {
			m.Range(func(k string, v model.Value) bool {
				fields.Set(k, v)
				return true
			})
		}
	}
	obj.Range(func(k string, v model.Value) bool {
		if _, reserved := reservedKeys[k]; !reserved {
			fields.SetIfAbsent(k, v)
		}
		return true
	})
	return fields
}

// stringField returns the string stored at key. Non-string scalars are rendered as text.
func stringField(obj model.Fields, key string) (string, bool) {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() {
		return "", false
	}
	switch v.Kind() {
	case model.KindString, model.KindNumber, model.KindBool:
		return sanitizeLogMessage(v.Text()), true
	}
	return "", false
}

func sanitizeLogMessage(message string) string {
	clean := strings.ReplaceAll(message, "\t", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	return clean
}

// ExtractStringField returns the first present string value found among the given keys.
func ExtractStringField(obj model.Fields, keys ...string) string {
	for _, k := range keys {
		if s, ok := stringField(obj, k); ok {
			return s
		}
	}
	return ""
}
