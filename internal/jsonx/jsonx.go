// Package jsonx decodes JSON produced by language models, which arrives
// with predictable defects: markdown code fences around the object, prose
// before or after it, and double-escaped unicode sequences. Everything here
// is best-effort; a payload that survives none of the repairs is reported
// as plain invalid JSON.
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoObject = errors.New("jsonx: no JSON object in payload")

// ExtractObject returns the outermost JSON object or array embedded in a
// completion, stripping code fences and surrounding prose. Valid input
// passes through untouched.
func ExtractObject(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	trimmed = stripFences(trimmed)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(trimmed, pair[0])
		end := strings.LastIndexByte(trimmed, pair[1])
		if start < 0 || end <= start {
			continue
		}
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, ErrNoObject
}

// Unmarshal decodes model JSON into v: a direct decode first, then one
// repair pass through ExtractObject and unicode normalization.
func Unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	obj, err := ExtractObject(string(raw))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err == nil {
		return nil
	}
	norm, err := NormalizeUnicode(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// stripFences removes a leading ```json (or bare ```) fence and its closing
// fence.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// NormalizeUnicode re-encodes the payload with escaped unicode sequences
// (e.g. a literal > inside a string value) collapsed to their
// characters.
func NormalizeUnicode(raw []byte) ([]byte, error) {
	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		// The whole payload may itself be a JSON-encoded string.
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(s), &val); err != nil {
			return nil, err
		}
	}
	return marshalNoEscape(deepUnescape(val))
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := unescapeString(x); err == nil {
			return s
		}
		return x
	case []any:
		for i := range x {
			x[i] = deepUnescape(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = deepUnescape(x[k])
		}
		return x
	default:
		return v
	}
}

// unescapeString turns literal >-style sequences into their characters
// by routing the text through a quoted JSON string. Strings without unicode
// escapes pass through untouched.
func unescapeString(s string) (string, error) {
	if !strings.Contains(s, `\u`) {
		return s, nil
	}
	esc := strings.ReplaceAll(s, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
