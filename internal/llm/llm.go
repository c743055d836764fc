// Package llm drafts exam questions with an OpenAI-compatible model.
// Drafts go to the exam builder for review; nothing here is stored or
// graded without a teacher editing and accepting it.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/examforge/examforge/internal/model"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// draft is the JSON shape the model is asked to produce per question.
type draft struct {
	Text               string   `json:"text"`
	Marks              int      `json:"marks"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	CorrectAnswerText  string   `json:"correct_answer_text"`
	Keywords           []string `json:"keywords"`
}

type draftResponse struct {
	Questions []draft `json:"questions"`
}

// SuggestQuestions asks the model for count draft questions of the given
// type. Drafts get fresh IDs and sane marks so they drop straight into the
// builder.
func (c *Client) SuggestQuestions(ctx context.Context, subject, topic string, qtype model.QuestionType, count int) ([]model.Question, error) {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	systemPrompt := buildSuggestSystemPrompt(subject, qtype, count)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "TOPIC: " + topic},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	var parsed draftResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	questions := make([]model.Question, 0, len(parsed.Questions))
	for _, d := range parsed.Questions {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		q := model.Question{
			ID:                 uuid.NewString(),
			Type:               qtype,
			Text:               strings.TrimSpace(d.Text),
			Marks:              d.Marks,
			Options:            d.Options,
			CorrectOptionIndex: d.CorrectOptionIndex,
			CorrectAnswerText:  d.CorrectAnswerText,
			Keywords:           d.Keywords,
		}
		if q.Marks < 1 {
			q.Marks = 1
		}
		if qtype == model.MultipleChoice &&
			(len(q.Options) < 2 || q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options)) {
			// A broken draft would never pass the builder; drop it.
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func buildSuggestSystemPrompt(subject string, qtype model.QuestionType, count int) string {
	var sb strings.Builder
	sb.WriteString("You are an assistant helping a teacher write exam questions.\n\n")
	sb.WriteString("SUBJECT: " + subject + "\n")
	sb.WriteString(fmt.Sprintf("Write %d questions of type %q about the topic the teacher gives you.\n\n", count, qtype))

	sb.WriteString("INSTRUCTIONS:\n")
	switch qtype {
	case model.MultipleChoice:
		sb.WriteString("- Each question needs exactly 4 options with exactly one correct option.\n")
		sb.WriteString("- Set correct_option_index to the zero-based index of the correct option.\n")
	case model.TrueFalse:
		sb.WriteString("- Each question is a statement; set correct_answer_text to \"True\" or \"False\".\n")
	case model.FillBlank:
		sb.WriteString("- Each question has a single blank; set correct_answer_text to the expected word or phrase.\n")
	case model.ShortAnswer:
		sb.WriteString("- Set keywords to the 2-4 terms a correct answer must mention, and correct_answer_text to a model answer.\n")
	case model.LongAnswer:
		sb.WriteString("- Write open essay questions. Leave options, keywords, and correct_answer_text empty.\n")
	}
	sb.WriteString("- Set marks to a small positive integer matching the question's difficulty.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"questions": [{"text": "...", "marks": 2, "options": [], "correct_option_index": 0, "correct_answer_text": "", "keywords": []}]}`)
	sb.WriteString("\n")

	return sb.String()
}
