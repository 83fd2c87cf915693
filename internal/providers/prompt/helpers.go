package prompt

import (
	"encoding/json"
	"errors"
	"strings"
)

// decodeSuggestions reads the model's idea list. Models answer with either a
// bare JSON array or an object wrapping it, sometimes inside a code fence.
func decodeSuggestions(raw string) ([]string, error) {
	body := stripFence(raw)
	if i := strings.IndexAny(body, "[{"); i > 0 {
		body = body[i:]
	}
	if j := strings.LastIndexAny(body, "]}"); j >= 0 {
		body = body[:j+1]
	}
	if body == "" {
		return nil, errors.New("empty suggestion payload")
	}
	if body[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, err
		}
		for _, key := range []string{"suggestions", "prompts", "ideas"} {
			if inner, ok := wrapped[key]; ok {
				body = string(inner)
				break
			}
		}
	}
	var items []string
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// dedupe drops blank and case-insensitively repeated ideas and keeps at most
// limit of them.
func dedupe(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, min(len(items), limit))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// stripFence removes a surrounding ``` block, with or without a language tag.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(text, "```")
	if !ok {
		return text
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "[{\"") {
		rest = rest[nl+1:]
	}
	rest, _, _ = strings.Cut(rest, "```")
	return strings.TrimSpace(rest)
}
