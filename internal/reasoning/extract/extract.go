// Package extract turns free-form reasoning replies into structured values.
// Replies are expected to contain one JSON object somewhere, possibly inside
// a fenced code block or surrounded by prose.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/actionsum/nudge/internal/models"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

type verdict struct {
	Detected            *bool           `json:"detected"`
	Confidence          string          `json:"confidence"`
	Theme               string          `json:"theme"`
	Observation         string          `json:"observation"`
	Insight             string          `json:"insight"`
	Offer               string          `json:"offer"`
	InstalledCapability string          `json:"installedCapability"`
	SearchKeywords      json.RawMessage `json:"searchKeywords"`
}

// FocusResult returns the first JSON object in text that carries a boolean
// "detected" field. It tries, in order: the whole reply, each fenced block,
// then every balanced {...} substring. ok is false when nothing matched.
func FocusResult(text string) (result *models.FocusDetectResult, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if r, ok := decode(text); ok {
		return r, true
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if r, ok := decode(strings.TrimSpace(m[1])); ok {
			return r, true
		}
	}

	for _, candidate := range Objects(text) {
		if r, ok := decode(candidate); ok {
			return r, true
		}
	}

	return nil, false
}

func decode(s string) (*models.FocusDetectResult, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var v verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil || v.Detected == nil {
		return nil, false
	}

	return &models.FocusDetectResult{
		Detected:            *v.Detected,
		Confidence:          normalizeConfidence(v.Confidence),
		Theme:               strings.TrimSpace(v.Theme),
		Observation:         strings.TrimSpace(v.Observation),
		Insight:             strings.TrimSpace(v.Insight),
		Offer:               strings.TrimSpace(v.Offer),
		InstalledCapability: strings.TrimSpace(v.InstalledCapability),
		SearchKeywords:      keywords(v.SearchKeywords),
	}, true
}

// normalizeConfidence maps anything but "high" to medium.
func normalizeConfidence(c string) models.Confidence {
	if strings.EqualFold(strings.TrimSpace(c), string(models.ConfidenceHigh)) {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}

// keywords accepts either a JSON string array or a comma separated string.
func keywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil
		}
		list = strings.Split(joined, ",")
	}

	out := make([]string, 0, len(list))
	for _, k := range list {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Objects returns every balanced {...} substring of s in order of their
// opening brace. Braces inside JSON strings are ignored.
func Objects(s string) []string {
	var out []string
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		if end := matchBrace(s, start); end > start {
			out = append(out, s[start:end+1])
		}
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
