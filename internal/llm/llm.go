package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pavelanni/quizcraft/internal/llm/prompts"
	"github.com/pavelanni/quizcraft/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMalformed marks generation output that parsed but does not describe a
// usable quiz (wrong question count, missing fields).
var ErrMalformed = errors.New("malformed quiz response")

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

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// GenerateQuiz asks the model for a multiple-choice quiz and validates the
// response shape before returning it. A malformed response is rejected
// here so a partial quiz never reaches the caller.
func (c *Client) GenerateQuiz(ctx context.Context, topic string, numQuestions int, difficulty string) (*model.Quiz, error) {
	prompt := prompts.BuildQuizPrompt(topic, numQuestions, difficulty)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
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
	slog.Debug("LLM quiz response", "raw", raw)

	var quiz model.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return nil, fmt.Errorf("parse quiz response: %w (raw: %s)", err, raw)
	}
	if err := checkQuiz(quiz, numQuestions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	quiz.Topic = topic
	quiz.Difficulty = difficulty
	return &quiz, nil
}

func checkQuiz(quiz model.Quiz, want int) error {
	if len(quiz.Questions) != want {
		return fmt.Errorf("got %d questions, want %d", len(quiz.Questions), want)
	}
	for i, q := range quiz.Questions {
		if q.Question == "" || q.CorrectAnswer == "" {
			return fmt.Errorf("question %d is missing fields", i+1)
		}
		if len(q.IncorrectAnswers) != 3 {
			return fmt.Errorf("question %d has %d incorrect answers, want 3", i+1, len(q.IncorrectAnswers))
		}
	}
	return nil
}

// Hint streams a subtle hint for the question, delivering chunks to fn in
// arrival order until the model closes the stream.
func (c *Client) Hint(ctx context.Context, question, correctAnswer string, fn func(chunk string) error) error {
	return c.streamCompletion(ctx, prompts.BuildHintPrompt(question, correctAnswer), fn)
}

// Explain streams an explanation of the correct answer, contrasted with the
// user's answer when one was given.
func (c *Client) Explain(ctx context.Context, question, correctAnswer string, userAnswer *string, fn func(chunk string) error) error {
	return c.streamCompletion(ctx, prompts.BuildExplainPrompt(question, correctAnswer, userAnswer), fn)
}

func (c *Client) streamCompletion(ctx context.Context, prompt string, fn func(chunk string) error) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("LLM stream call: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("LLM stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			if err := fn(chunk); err != nil {
				return err
			}
		}
	}
}
