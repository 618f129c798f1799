// Package composer assembles the message list sent to the completion service
// once the survey has handed off to free conversation.
package composer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/anchor/internal/engine"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
)

const persona = `You are an Alcoholics Anonymous (AA) counselor. You support people who are struggling with alcohol, with empathy and without judgement. Help the user reflect on their situation, mention the 12-step program where it fits, and offer coping strategies or resources when appropriate. Keep a warm, compassionate tone.

Keep every response to 100 words or fewer.`

const scoringContract = `Priority areas: once the intake survey is complete, assess the user's life areas using the question bank below and the conversation so far. Give each area a score from 1 (doing well) to 10 (needs urgent attention) and a one-sentence explanation. Write your normal reply first, then append exactly one block in this form:
` + scoring.StartMarker + `
{"priorityAreas":[{"name":"Family","score":7,"explanation":"..."}]}
` + scoring.EndMarker + `
Never mention the block in your reply text.`

const (
	statusComplete   = "Survey status: complete. Include the priority area block in this reply."
	statusIncomplete = "Survey status: not complete. Do not include a priority area block."
)

// Composer builds free-conversation requests. It is stateless.
type Composer struct{}

// New creates a Composer.
func New() *Composer {
	return &Composer{}
}

// Compose returns the system preamble, the flattened question bank, the full
// prior transcript and finally userText as the newest user turn. Stored
// "model" turns are normalized to assistant; any other non-assistant role is
// sent as a user turn.
func (c *Composer) Compose(bank question.Bank, history []engine.Message, userText string, surveyComplete bool) []engine.Message {
	msgs := make([]engine.Message, 0, len(history)+2)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: buildSystem(bank, surveyComplete)})

	for _, m := range history {
		role := engine.RoleUser
		if m.Role == engine.RoleAssistant || m.Role == "model" {
			role = engine.RoleAssistant
		}
		msgs = append(msgs, engine.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: userText})

	slog.Debug("composed prompt",
		"messages", len(msgs),
		"estimated_tokens", EstimateMessagesTokens(msgs),
		"survey_complete", surveyComplete,
	)
	return msgs
}

func buildSystem(bank question.Bank, surveyComplete bool) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	sb.WriteString(scoringContract)
	sb.WriteString("\n\n")
	if surveyComplete {
		sb.WriteString(statusComplete)
	} else {
		sb.WriteString(statusIncomplete)
	}

	if flat := bank.Flatten(); flat != "" {
		fmt.Fprintf(&sb, "\n\n[Question Bank]\n%s", flat)
	}
	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessagesTokens sums EstimateTokens over message contents.
func EstimateMessagesTokens(msgs []engine.Message) int {
	n := 0
	for _, m := range msgs {
		n += EstimateTokens(m.Content)
	}
	return n
}
