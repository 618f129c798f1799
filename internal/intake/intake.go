// Package intake stores the structured intake questionnaire answers a user
// gives outside of the chat survey.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/storage"
)

// Question types with a dedicated answer encoding or check.
const (
	TypeYesNo          = "yes_no"
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeScale          = "scale"
)

// ErrInvalidAnswer is returned when a value does not fit the question type.
var ErrInvalidAnswer = errors.New("invalid answer")

// Store persists intake responses. Implemented by storage.Store.
type Store interface {
	UpsertIntakeResponse(r storage.IntakeResponse) error
	ListIntakeResponses(userID string) (map[string]storage.IntakeResponse, error)
	DeleteIntakeResponse(userID, questionID string) error
}

// Service validates, encodes and decodes intake answers.
type Service struct {
	store Store
}

// NewService creates a Service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Save validates value against q and stores it, replacing any previous answer.
// Accepted values: []string (or a JSON-decoded []any of strings) for multiple
// choice, a number for scales, a string otherwise.
func (s *Service) Save(userID string, q question.Record, value any) error {
	if q.ID == "" {
		return fmt.Errorf("%w: question has no id", ErrInvalidAnswer)
	}
	encoded, err := Encode(q, value)
	if err != nil {
		return err
	}
	if err := s.store.UpsertIntakeResponse(storage.IntakeResponse{
		UserID:     userID,
		QuestionID: q.ID,
		Value:      encoded,
	}); err != nil {
		return fmt.Errorf("saving intake response: %w", err)
	}
	return nil
}

// Answers returns the user's stored answers for bank keyed by question ID,
// decoded by question type. Responses to questions no longer in the bank are
// left out.
func (s *Service) Answers(userID string, bank question.Bank) (map[string]any, error) {
	stored, err := s.store.ListIntakeResponses(userID)
	if err != nil {
		return nil, fmt.Errorf("listing intake responses: %w", err)
	}
	out := make(map[string]any, len(stored))
	for _, q := range bank {
		r, ok := stored[q.ID]
		if q.ID == "" || !ok {
			continue
		}
		out[q.ID] = Decode(q, r.Value)
	}
	return out, nil
}

// Skip removes the stored answer to questionID, if any.
func (s *Service) Skip(userID, questionID string) error {
	err := s.store.DeleteIntakeResponse(userID, questionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting intake response: %w", err)
	}
	return err
}

// FirstUnanswered returns the index of the first question in bank without an
// answer. When every question is answered it returns 0 so the user can go
// through the answers again.
func FirstUnanswered(bank question.Bank, answers map[string]any) int {
	for i, q := range bank {
		if q.ID == "" || !q.Selectable() {
			continue
		}
		if _, ok := answers[q.ID]; !ok {
			return i
		}
	}
	return 0
}

// Encode renders value in the stored form for q's type.
func Encode(q question.Record, value any) (string, error) {
	switch q.Type {
	case TypeMultipleChoice:
		choices, ok := stringSlice(value)
		if !ok {
			return "", fmt.Errorf("%w: %s expects a list of options", ErrInvalidAnswer, q.Type)
		}
		if opts := options(q); opts != nil {
			for _, c := range choices {
				if !slices.Contains(opts, c) {
					return "", fmt.Errorf("%w: %q is not an option", ErrInvalidAnswer, c)
				}
			}
		}
		b, err := json.Marshal(choices)
		if err != nil {
			return "", err
		}
		return string(b), nil

	case TypeScale:
		n, ok := number(value)
		if !ok {
			return "", fmt.Errorf("%w: %s expects a number", ErrInvalidAnswer, q.Type)
		}
		lo, hi := scaleBounds(q)
		if n < lo || n > hi {
			return "", fmt.Errorf("%w: %v is outside %v-%v", ErrInvalidAnswer, n, lo, hi)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}

	text, ok := value.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s expects text", ErrInvalidAnswer, typeName(q))
	}
	switch q.Type {
	case TypeYesNo:
		text = strings.ToLower(strings.TrimSpace(text))
		if text != "yes" && text != "no" {
			return "", fmt.Errorf("%w: answer yes or no", ErrInvalidAnswer)
		}
	case TypeSingleChoice:
		if opts := options(q); opts != nil && !slices.Contains(opts, text) {
			return "", fmt.Errorf("%w: %q is not an option", ErrInvalidAnswer, text)
		}
	}
	return text, nil
}

// Decode turns a stored value back into the shape Encode accepts. Values
// that fail to parse are returned as the raw string.
func Decode(q question.Record, stored string) any {
	switch q.Type {
	case TypeMultipleChoice:
		var choices []string
		if err := json.Unmarshal([]byte(stored), &choices); err != nil {
			slog.Warn("stored multiple choice answer is not a list", "question_id", q.ID, "error", err)
			return stored
		}
		return choices
	case TypeScale:
		n, err := strconv.ParseFloat(stored, 64)
		if err != nil {
			return stored
		}
		return n
	}
	return stored
}

func typeName(q question.Record) string {
	if q.Type == "" {
		return "question"
	}
	return q.Type
}

func stringSlice(v any) ([]string, bool) {
	switch v := v.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	}
	return 0, false
}

// options reads the "options" column, or nil when the question has none.
func options(q question.Record) []string {
	opts, ok := stringSlice(q.Extra["options"])
	if !ok || len(opts) == 0 {
		return nil
	}
	return opts
}

// scaleBounds reads min_value/max_value, defaulting to 0-10.
func scaleBounds(q question.Record) (lo, hi float64) {
	lo, hi = 0, 10
	if n, ok := number(q.Extra["min_value"]); ok {
		lo = n
	}
	if n, ok := number(q.Extra["max_value"]); ok {
		hi = n
	}
	return lo, hi
}
