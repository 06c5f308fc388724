// Package artifact recovers a structured website artifact from free-form model output.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

type Artifact = domain.Artifact

// Stage names the fallback step that produced a result.
type Stage string

const (
	StageDirect    Stage = "direct"
	StageCandidate Stage = "candidate"
	StageFields    Stage = "fields"
)

const (
	// RawExcerptLimit bounds the raw text kept on a ParseError.
	RawExcerptLimit = 1000

	maxCandidates = 64
)

// Output is a parsed response plus the optional metadata the model may attach.
type Output struct {
	Artifact Artifact        `json:"artifact"`
	Stage    Stage           `json:"stage"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
	Changes  string          `json:"changes,omitempty"`
}

// ParseError is returned when no stage could recover an artifact.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable generation output: %s", e.Reason)
}

var ErrNoArtifact = errors.New("no artifact object found")

var (
	markupKeys = []string{`"html"`, `"markup"`}
	stylesKeys = []string{`"css"`, `"styles"`}

	markupField = regexp.MustCompile(`"(?:html|markup)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	stylesField = regexp.MustCompile(`"(?:css|styles)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	scriptField = regexp.MustCompile(`"(?:js|script)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	openFence  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	closeFence = regexp.MustCompile("\r?\n?```[ \t]*$")
)

// Parse returns the artifact contained in raw.
func Parse(raw string) (Artifact, error) {
	out, err := ParseOutput(raw)
	if err != nil {
		return Artifact{}, err
	}
	return out.Artifact, nil
}

// ParseOutput applies the fallback chain and stops at the first stage that succeeds.
// It never panics; any internal fault is reported as a ParseError.
func ParseOutput(raw string) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = newParseError(raw, fmt.Sprintf("parser fault: %v", r))
		}
	}()

	text := StripFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, newParseError(raw, "empty response")
	}

	if o, ok := decode(text); ok {
		o.Stage = StageDirect
		return o, nil
	}

	if o, ok := scanCandidates(text); ok {
		o.Stage = StageCandidate
		return o, nil
	}

	if o, ok := scanFields(text); ok {
		o.Stage = StageFields
		return o, nil
	}

	return nil, newParseError(raw, ErrNoArtifact.Error())
}

// StripFences removes a leading and trailing markdown code fence, if present.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = openFence.ReplaceAllString(s, "")
		s = closeFence.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

type wireOutput struct {
	HTML     *string         `json:"html"`
	Markup   *string         `json:"markup"`
	CSS      *string         `json:"css"`
	Styles   *string         `json:"styles"`
	JS       *string         `json:"js"`
	Script   *string         `json:"script"`
	Analysis json.RawMessage `json:"analysis"`
	Changes  json.RawMessage `json:"changes"`
}

func decode(text string) (*Output, bool) {
	var w wireOutput
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, false
	}
	markup := first(w.HTML, w.Markup)
	styles := first(w.CSS, w.Styles)
	if markup == nil && styles == nil {
		return nil, false
	}

	out := &Output{
		Artifact: Artifact{
			Markup: deref(markup),
			Styles: deref(styles),
			Script: deref(first(w.JS, w.Script)),
		},
		Changes: changesText(w.Changes),
	}
	if len(w.Analysis) > 0 && string(w.Analysis) != "null" {
		out.Analysis = w.Analysis
	}
	return out, true
}

// scanCandidates tries every object start in order. For each one it tries the
// longest run to the last closing brace, then the balanced object.
func scanCandidates(text string) (*Output, bool) {
	last := strings.LastIndexByte(text, '}')
	if last < 0 {
		return nil, false
	}

	tried := 0
	for i := 0; i < last && tried < maxCandidates; i++ {
		if text[i] != '{' || !startsObject(text, i) {
			continue
		}
		tried++

		greedy := text[i : last+1]
		if hasMarkers(greedy) {
			if o, ok := decode(greedy); ok {
				return o, true
			}
		}

		if end := balancedEnd(text, i); end > 0 && end != last {
			obj := text[i : end+1]
			if hasMarkers(obj) {
				if o, ok := decode(obj); ok {
					return o, true
				}
			}
		}
	}
	return nil, false
}

// scanFields extracts escaped string bodies for the known fields from the first
// complete object, tolerating raw control characters the strict decoder rejects.
func scanFields(text string) (*Output, bool) {
	tried := 0
	for i := 0; i < len(text) && tried < maxCandidates; i++ {
		if text[i] != '{' || !startsObject(text, i) {
			continue
		}
		tried++

		end := balancedEnd(text, i)
		if end < 0 {
			continue
		}
		obj := text[i : end+1]

		m := markupField.FindStringSubmatch(obj)
		if m == nil {
			continue
		}
		markup, ok := unquote(m[1])
		if !ok {
			continue
		}

		a := Artifact{Markup: markup}
		if s := stylesField.FindStringSubmatch(obj); s != nil {
			a.Styles, _ = unquote(s[1])
		}
		if s := scriptField.FindStringSubmatch(obj); s != nil {
			a.Script, _ = unquote(s[1])
		}
		return &Output{Artifact: a}, true
	}
	return nil, false
}

// startsObject reports whether the brace at i opens an object with a quoted key.
func startsObject(text string, i int) bool {
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\r', '\n':
			continue
		case '"':
			return true
		default:
			return false
		}
	}
	return false
}

// balancedEnd returns the index of the brace closing the object opened at start,
// skipping braces inside string literals, or -1 when the object never closes.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func hasMarkers(s string) bool {
	return containsAny(s, markupKeys) && containsAny(s, stylesKeys)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func unquote(body string) (string, bool) {
	var b strings.Builder
	b.Grow(len(body) + 2)
	b.WriteByte('"')
	for _, r := range body {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')

	var s string
	if err := json.Unmarshal([]byte(b.String()), &s); err != nil {
		return "", false
	}
	return s, true
}

func changesText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func first(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newParseError(raw, reason string) *ParseError {
	return &ParseError{Raw: Excerpt(raw, RawExcerptLimit), Reason: reason}
}

// Excerpt cuts s to at most limit bytes without splitting a rune.
func Excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
