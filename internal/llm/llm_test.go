package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/quizcraft/internal/model"
)

// fakeOpenAI serves a canned chat completion whose message content is the
// given string.
func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":     "test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func validQuizJSON(n int) string {
	quiz := model.Quiz{}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, model.Question{
			Question:         "Question text",
			CorrectAnswer:    "Right",
			IncorrectAnswers: []string{"Wrong 1", "Wrong 2", "Wrong 3"},
		})
	}
	data, _ := json.Marshal(quiz)
	return string(data)
}

func TestGenerateQuiz(t *testing.T) {
	srv := fakeOpenAI(t, validQuizJSON(3))
	c := New(srv.URL, "test-key", "test-model")

	quiz, err := c.GenerateQuiz(context.Background(), "geography", 3, "medium")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if len(quiz.Questions) != 3 {
		t.Errorf("expected 3 questions, got %d", len(quiz.Questions))
	}
	if quiz.Topic != "geography" || quiz.Difficulty != "medium" {
		t.Errorf("topic/difficulty not set on quiz: %+v", quiz)
	}
}

func TestGenerateQuizMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong count", validQuizJSON(2)},
		{"no questions", `{"questions": []}`},
		{"missing correct answer", `{"questions": [{"question": "Q?", "correctAnswer": "", "incorrectAnswers": ["a","b","c"]}]}`},
		{"too few distractors", `{"questions": [{"question": "Q?", "correctAnswer": "A", "incorrectAnswers": ["a","b"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOpenAI(t, tt.content)
			c := New(srv.URL, "test-key", "test-model")
			_, err := c.GenerateQuiz(context.Background(), "geography", 3, "medium")
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestGenerateQuizUnparseable(t *testing.T) {
	srv := fakeOpenAI(t, "sorry, I cannot do that")
	c := New(srv.URL, "test-key", "test-model")
	if _, err := c.GenerateQuiz(context.Background(), "geography", 3, "medium"); err == nil {
		t.Error("expected error for non-JSON response")
	}
}

func TestCheckQuiz(t *testing.T) {
	good := model.Quiz{Questions: []model.Question{
		{Question: "Q?", CorrectAnswer: "A", IncorrectAnswers: []string{"b", "c", "d"}},
	}}
	if err := checkQuiz(good, 1); err != nil {
		t.Errorf("valid quiz rejected: %v", err)
	}
	if err := checkQuiz(good, 2); err == nil {
		t.Error("count mismatch accepted")
	}
}
