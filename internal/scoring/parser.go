// Package scoring extracts priority-area scores that the counselor model
// embeds in its free-text replies.
package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Sentinel markers the model is instructed to wrap its scoring block in.
const (
	StartMarker = "<!--JSON_START-->"
	EndMarker   = "<!--JSON_END-->"
)

// ErrMalformed describes a scoring block that was found but could not be used.
var ErrMalformed = errors.New("malformed scoring output")

// PriorityArea is a life domain with a 1-10 severity score and a rationale.
type PriorityArea struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
}

// Result is the outcome of Parse. Areas is nil unless a valid block was
// accepted. Visible is the text to show the user.
type Result struct {
	Areas   []PriorityArea
	Visible string
	// Err is set (wrapping ErrMalformed) when a block was located but
	// rejected. It is informational; Parse never fails.
	Err error
}

// Parse pulls the scoring block out of raw. Scores are only accepted when
// surveyComplete is true; before that any sentinel block is dropped from the
// visible text and ignored. A block that cannot be parsed leaves raw visible.
func Parse(raw string, surveyComplete bool) Result {
	if !surveyComplete {
		if prefix, _, ok := sentinelBlock(raw); ok {
			return Result{Visible: cleanProse(prefix)}
		}
		return Result{Visible: strings.TrimSpace(raw)}
	}

	prefix, block, ok := locate(raw)
	if !ok {
		return Result{Visible: strings.TrimSpace(raw)}
	}

	areas, err := decode(block)
	if err != nil {
		slog.Warn("discarding scoring block", "error", err)
		return Result{Visible: strings.TrimSpace(raw), Err: err}
	}

	return Result{Areas: areas, Visible: cleanProse(prefix)}
}

// locate finds the scoring block: the sentinel-delimited span when present,
// otherwise the first brace-delimited object. prefix is the text before it.
func locate(raw string) (prefix, block string, ok bool) {
	if prefix, block, ok := sentinelBlock(raw); ok {
		return prefix, block, true
	}
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", "", false
	}
	end := matchBrace(raw, start)
	if end < 0 {
		return raw[:start], raw[start:], true
	}
	return raw[:start], raw[start : end+1], true
}

// sentinelBlock returns the text between the markers. A missing end marker
// yields everything after the start marker, which then fails to decode if
// the model was cut off.
func sentinelBlock(raw string) (prefix, block string, ok bool) {
	i := strings.Index(raw, StartMarker)
	if i < 0 {
		return "", "", false
	}
	rest := raw[i+len(StartMarker):]
	if j := strings.Index(rest, EndMarker); j >= 0 {
		rest = rest[:j]
	}
	return raw[:i], rest, true
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripArtifacts removes markers and code fences the model tends to wrap
// JSON in.
func stripArtifacts(s string) string {
	s = strings.ReplaceAll(s, StartMarker, "")
	s = strings.ReplaceAll(s, EndMarker, "")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// cleanProse trims the human-readable prefix, dropping an opening code fence
// left dangling in front of the block.
func cleanProse(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```json", "```JSON", "```"} {
		s = strings.TrimSuffix(s, fence)
	}
	return strings.TrimSpace(s)
}

func decode(block string) ([]PriorityArea, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripArtifacts(block)), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, ok := envelope["priorityAreas"]
	if !ok {
		return nil, fmt.Errorf("%w: missing priorityAreas", ErrMalformed)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: priorityAreas is not an array", ErrMalformed)
	}

	areas := make([]PriorityArea, 0, len(items))
	for i, item := range items {
		area, ok := validate(item)
		if !ok {
			slog.Debug("dropping invalid priority area", "index", i, "item", string(item))
			continue
		}
		areas = append(areas, area)
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("%w: no valid priority areas", ErrMalformed)
	}
	return areas, nil
}

// validate checks one element's shape. Scores are rounded to the nearest
// integer but otherwise taken as given; range checking is the model's job.
// A score too large for an int is a shape error, not a range one.
func validate(item json.RawMessage) (PriorityArea, bool) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return PriorityArea{}, false
	}
	name, ok := fields["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return PriorityArea{}, false
	}
	score, ok := fields["score"].(float64)
	if !ok {
		return PriorityArea{}, false
	}
	score = math.Round(score)
	if score < math.MinInt || score >= math.MaxInt {
		return PriorityArea{}, false
	}
	explanation, ok := fields["explanation"].(string)
	if !ok {
		return PriorityArea{}, false
	}
	return PriorityArea{
		Name:        strings.TrimSpace(name),
		Score:       int(score),
		Explanation: explanation,
	}, true
}
