// Package question holds the survey question bank: the ordered, read-only set
// of question records a chat session walks through.
package question

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is one row of the question bank. Columns without a dedicated field
// are kept in Extra and forwarded verbatim into prompt context.
type Record struct {
	ID       string
	Text     string
	Category string // priority area the question belongs to, e.g. "family"
	Type     string // e.g. "yes_no", "scale", "multiple_choice"
	Extra    map[string]any
}

// Known column names. Everything else lands in Extra.
const (
	fieldID       = "id"
	fieldText     = "question_text"
	fieldCategory = "category"
	fieldType     = "question_type"
)

// Selectable reports whether the record carries question text.
func (r Record) Selectable() bool {
	return strings.TrimSpace(r.Text) != ""
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		m[k] = v
	}
	if r.ID != "" {
		m[fieldID] = r.ID
	}
	m[fieldText] = r.Text
	if r.Category != "" {
		m[fieldCategory] = r.Category
	}
	if r.Type != "" {
		m[fieldType] = r.Type
	}
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{}
	r.ID = takeString(raw, fieldID)
	r.Text = takeString(raw, fieldText)
	// Older sheets used "question" and "priority_area" for these columns.
	if r.Text == "" {
		r.Text = takeString(raw, "question")
	}
	r.Category = takeString(raw, fieldCategory)
	if r.Category == "" {
		r.Category = takeString(raw, "priority_area")
	}
	r.Type = takeString(raw, fieldType)
	if r.Type == "" {
		r.Type = takeString(raw, "type")
	}
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// takeString removes key from m and returns its value as text. Non-string
// values (numeric IDs, for instance) are formatted with %v.
func takeString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Bank is the ordered question bank for one session. Indices into a Bank are
// the question identities used by the survey tracker.
type Bank []Record

// Fingerprint identifies the bank's content and order. Survey progress is
// only meaningful against a bank with the same fingerprint. Extra fields are
// left out since they never change which question an index refers to.
func (b Bank) Fingerprint() string {
	if len(b) == 0 {
		return ""
	}
	h := sha256.New()
	for _, r := range b {
		for _, f := range []string{r.ID, r.Text, r.Category, r.Type} {
			fmt.Fprintf(h, "%d:%s", len(f), f)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Flatten renders every record as a block of "key: value" lines, blocks
// separated by a blank line. Extra fields follow the known ones in key order.
func (b Bank) Flatten() string {
	var sb strings.Builder
	for i, r := range b {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeField(&sb, fieldID, r.ID)
		writeField(&sb, fieldText, r.Text)
		writeField(&sb, fieldCategory, r.Category)
		writeField(&sb, fieldType, r.Type)

		keys := make([]string, 0, len(r.Extra))
		for k := range r.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(&sb, k, formatValue(r.Extra[k]))
		}
	}
	return sb.String()
}

func writeField(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", key, value)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
