package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/chatsim/internal/phrase"
)

// Parse turns raw model output into a phrase set for mode.
//
// Code fences are stripped and the outermost JSON object is decoded. A
// rejection object ({"error":"INVALID_GAME","reason":...}) yields a
// [*RejectionError]. Otherwise every category of mode must be present and
// non-null, else the error matches [ErrMalformedResponse]. Present values of
// the wrong type become empty lists; non-string and blank items are dropped.
func Parse(raw string, mode phrase.Mode) (phrase.Set, error) {
	body, ok := extractObject(raw)
	if !ok {
		return nil, fmt.Errorf("synth: %w: no JSON object in response", ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("synth: %w: %v", ErrMalformedResponse, err)
	}

	if rawCode, ok := fields["error"]; ok {
		if rej := rejection(rawCode, fields["reason"]); rej != nil {
			return nil, rej
		}
	}

	set := make(phrase.Set, len(mode.Categories()))
	for _, c := range mode.Categories() {
		v, ok := fields[string(c)]
		if !ok || isNull(v) {
			return nil, fmt.Errorf("synth: %w: missing %q", ErrMalformedResponse, c)
		}
		set[c] = coerce(v, categoryLimits[c])
	}
	return set, nil
}

// stripFences removes Markdown code fence markers, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// extractObject returns the span from the first '{' to the last '}' of the
// fence-stripped input. Models occasionally wrap JSON in prose.
func extractObject(raw string) ([]byte, bool) {
	s := stripFences(raw)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}

// rejection returns a RejectionError when code is a known rejection code.
func rejection(rawCode, rawReason json.RawMessage) *RejectionError {
	var code string
	if err := json.Unmarshal(rawCode, &code); err != nil {
		return nil
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code != CodeInvalidGame && code != CodeInvalidTopic {
		return nil
	}
	var reason string
	if rawReason != nil {
		_ = json.Unmarshal(rawReason, &reason)
	}
	return &RejectionError{Code: code, Reason: strings.TrimSpace(reason)}
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// coerce decodes v as a list of phrases, keeping at most limit entries when
// limit is positive.
func coerce(v json.RawMessage, limit int) []string {
	var items []any
	if err := json.Unmarshal(v, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
