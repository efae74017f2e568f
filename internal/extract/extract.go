// Package extract pulls structured blocks out of free-form model output.
package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FencedJSON returns the body of the first ```json fenced block in text. A
// bare ``` fence is accepted when its body looks like a JSON object. When no
// fence is present but the whole trimmed text is a JSON object, that text is
// returned. ok is false when nothing resembling a JSON block was found.
func FencedJSON(text string) (block string, ok bool) {
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		after := rest[start+3:]
		nl := strings.IndexByte(after, '\n')
		if nl < 0 {
			break
		}
		lang := strings.ToLower(strings.TrimSpace(after[:nl]))
		body := after[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			// unterminated fence: take the remainder
			end = len(body)
		}
		candidate := strings.TrimSpace(body[:end])
		if lang == "json" || (lang == "" && strings.HasPrefix(candidate, "{")) {
			return candidate, true
		}
		if end == len(body) {
			break
		}
		rest = body[end+3:]
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}
	return "", false
}

// DecodeStrict decodes a JSON block into v, rejecting unknown fields and
// trailing data.
func DecodeStrict(block string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(block)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return nil
}
