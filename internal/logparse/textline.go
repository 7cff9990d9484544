package logparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

var (
	// ansiRegex matches CSI and OSC escape sequences.
	ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

	// consoleLineRegex matches "HH:MM:SS.mmm LEVEL SOURCE file:line > rest".
	consoleLineRegex = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d{3})\s+(\S+)\s+(\S+)\s+(\S+:\d+)\s+>(.*)$`)

	fieldBoundaryRegex = regexp.MustCompile(`\s+\w+=`)
	fieldTokenRegex    = regexp.MustCompile(`(\w+)=(\[[^\]]*\]|\S+)`)
	numberRegex        = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiRegex.ReplaceAllString(s, "")
}

// DecodeTextLine decodes one console line. The wall-clock time in the line is
// placed on now's date, in now's location. Lines that do not match the console
// format report false.
func DecodeTextLine(line string, now time.Time) (model.Entry, bool) {
	clean := strings.TrimRight(StripANSI(line), "\r\n")
	m := consoleLineRegex.FindStringSubmatch(clean)
	if m == nil {
		return model.Entry{}, false
	}

	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	if hh > 23 || mm > 59 || ss > 59 {
		return model.Entry{}, false
	}
	y, mo, d := now.Date()
	ts := time.Date(y, mo, d, hh, mm, ss, ms*int(time.Millisecond), now.Location())

	level, _ := NormalizeLevel(m[5])
	message, fields := SplitMessageFields(m[8])

	return model.Entry{
		Timestamp: ts,
		Level:     level,
		Source:    m[6],
		Caller:    model.StringPtr(m[7]),
		Message:   message,
		Fields:    fields,
	}, true
}

// SplitMessageFields splits rest at the first " key=" boundary. Text before it
// is the message, the remainder is tokenized into coerced fields.
func SplitMessageFields(rest string) (string, model.Fields) {
	var fields model.Fields
	loc := fieldBoundaryRegex.FindStringIndex(rest)
	if loc == nil {
		return strings.TrimSpace(rest), fields
	}

	message := strings.TrimSpace(rest[:loc[0]])
	for _, tok := range fieldTokenRegex.FindAllStringSubmatch(rest[loc[0]:], -1) {
		fields.Set(tok[1], CoerceValue(tok[2]))
	}
	return message, fields
}

// CoerceValue interprets a console token as integer, float, boolean, then string.
// A string wrapped in one layer of brackets has the brackets removed.
func CoerceValue(raw string) model.Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return model.Int(n)
	}
	if numberRegex.MatchString(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return model.Float(f)
		}
	}
	switch raw {
	case "true":
		return model.Bool(true)
	case "false":
		return model.Bool(false)
	}
	if len(raw) >= 2 && raw[0] == '[' && raw[len(raw)-1] == ']' {
		return model.String(raw[1 : len(raw)-1])
	}
	return model.String(raw)
}
