package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizcraft/internal/config"
	"github.com/pavelanni/quizcraft/internal/i18n"
	"github.com/pavelanni/quizcraft/internal/model"
	"github.com/pavelanni/quizcraft/internal/session"
	"github.com/pavelanni/quizcraft/internal/store"
)

var i18nOnce sync.Once

func initI18n(t *testing.T) {
	t.Helper()
	i18nOnce.Do(func() {
		if err := i18n.Init("en"); err != nil {
			t.Fatalf("i18n.Init: %v", err)
		}
	})
}

type stubGen struct {
	err   error
	block chan struct{} // when set, GenerateQuiz waits for ctx or the channel
}

func (g *stubGen) GenerateQuiz(ctx context.Context, topic string, n int, difficulty string) (*model.Quiz, error) {
	if g.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.block:
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	quiz := &model.Quiz{}
	for i := 1; i <= n; i++ {
		quiz.Questions = append(quiz.Questions, model.Question{
			Question:      fmt.Sprintf("Question %d?", i),
			CorrectAnswer: fmt.Sprintf("Correct %d", i),
			IncorrectAnswers: []string{
				fmt.Sprintf("Wrong %d-a", i),
				fmt.Sprintf("Wrong %d-b", i),
				fmt.Sprintf("Wrong %d-c", i),
			},
		})
	}
	return quiz, nil
}

type stubAssistant struct{}

func (stubAssistant) Hint(_ context.Context, _, _ string, fn func(string) error) error {
	if err := fn("Think about "); err != nil {
		return err
	}
	return fn("the obvious.")
}

func (stubAssistant) Explain(_ context.Context, _, _ string, _ *string, fn func(string) error) error {
	return fn("Because it is.")
}

type memPrefs struct {
	prefs model.Prefs
	set   bool
	err   error
}

func (m *memPrefs) GetPrefs() (model.Prefs, error) {
	if m.err != nil {
		return model.Prefs{}, m.err
	}
	if !m.set {
		return model.DefaultPrefs(), nil
	}
	return m.prefs, nil
}

func (m *memPrefs) SetPrefs(p model.Prefs) error {
	if m.err != nil {
		return m.err
	}
	m.prefs = p
	m.set = true
	return nil
}

type testEnv struct {
	srv   *httptest.Server
	hist  *store.MemStore
	prefs *memPrefs
}

func newTestEnv(t *testing.T, gen session.Generator, opts ...session.Option) *testEnv {
	t.Helper()
	initI18n(t)

	hist := store.NewMemStore()
	prefs := &memPrefs{}
	ctrl := session.New(config.Default(), gen, hist, opts...)
	h := New(ctrl, hist, prefs, stubAssistant{}, config.Default())

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en", nil))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hist: hist, prefs: prefs}
}

// call issues a request and decodes the JSON response body into a map.
func (e *testEnv) call(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("decode response from %s %s: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

func startQuiz(t *testing.T, e *testEnv, n int) {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/api/quiz",
		map[string]any{"topic": "go", "numQuestions": n, "difficulty": "medium"})
	if status != http.StatusOK {
		t.Fatalf("start quiz: status %d, body %v", status, body)
	}
	if body["phase"] != "question" {
		t.Fatalf("expected question phase, got %v", body["phase"])
	}
}

func TestQuizFlow(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	startQuiz(t, e, 2)

	status, body := e.call(t, http.MethodGet, "/api/session", nil)
	if status != http.StatusOK {
		t.Fatalf("get session: status %d", status)
	}
	choices, ok := body["choices"].([]any)
	if !ok || len(choices) != 4 {
		t.Fatalf("expected 4 choices, got %v", body["choices"])
	}
	if _, revealed := body["correctAnswer"]; revealed {
		t.Error("correct answer leaked before selection")
	}

	status, body = e.call(t, http.MethodPost, "/api/session/answer",
		map[string]string{"answer": "Correct 1"})
	if status != http.StatusOK {
		t.Fatalf("answer: status %d, body %v", status, body)
	}
	if body["correctAnswer"] != "Correct 1" {
		t.Errorf("correct answer not revealed after selection: %v", body["correctAnswer"])
	}

	status, _ = e.call(t, http.MethodPost, "/api/session/next", nil)
	if status != http.StatusOK {
		t.Fatalf("next: status %d", status)
	}

	// Skip the last question; the session lands on the summary.
	status, body = e.call(t, http.MethodPost, "/api/session/next", nil)
	if status != http.StatusOK {
		t.Fatalf("next: status %d", status)
	}
	snap, ok := body["session"].(map[string]any)
	if !ok {
		t.Fatalf("expected wrapped session, got %v", body)
	}
	if snap["phase"] != "summary" {
		t.Errorf("expected summary phase, got %v", snap["phase"])
	}
	if snap["score"] != float64(1) {
		t.Errorf("expected score 1, got %v", snap["score"])
	}
	if _, degraded := body["message"]; degraded {
		t.Errorf("unexpected degradation message: %v", body["message"])
	}

	status, body = e.call(t, http.MethodGet, "/api/history", nil)
	if status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %v", body["entries"])
	}
}

func TestStartQuizValidationStatus(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	status, _ := e.call(t, http.MethodPost, "/api/quiz",
		map[string]any{"topic": "", "numQuestions": 3, "difficulty": "medium"})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", status)
	}
}

func TestGenerationFailureStatus(t *testing.T) {
	e := newTestEnv(t, &stubGen{err: errors.New("model is down")})
	status, body := e.call(t, http.MethodPost, "/api/quiz",
		map[string]any{"topic": "go", "numQuestions": 3, "difficulty": "medium"})
	if status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d (body %v)", status, body)
	}
}

func TestGenerationTimeoutStatus(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	e := newTestEnv(t, gen, session.WithGenerationTimeout(10*time.Millisecond))
	status, _ := e.call(t, http.MethodPost, "/api/quiz",
		map[string]any{"topic": "go", "numQuestions": 3, "difficulty": "medium"})
	if status != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", status)
	}
}

func TestAnswerConflicts(t *testing.T) {
	e := newTestEnv(t, &stubGen{})

	// No quiz in progress.
	status, _ := e.call(t, http.MethodPost, "/api/session/answer",
		map[string]string{"answer": "anything"})
	if status != http.StatusConflict {
		t.Errorf("expected 409 outside question phase, got %d", status)
	}

	startQuiz(t, e, 2)
	e.call(t, http.MethodPost, "/api/session/answer", map[string]string{"answer": "Correct 1"})
	status, _ = e.call(t, http.MethodPost, "/api/session/answer",
		map[string]string{"answer": "Wrong 1-a"})
	if status != http.StatusConflict {
		t.Errorf("expected 409 for a second answer, got %d", status)
	}
}

func TestHistoryDelete(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	id, err := e.hist.Add(model.HistoryEntry{Topic: "go", Difficulty: "easy", TotalQuestions: 1, Attempt: 1})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	status, _ := e.call(t, http.MethodDelete, fmt.Sprintf("/api/history/%d", id), nil)
	if status != http.StatusOK {
		t.Fatalf("delete: status %d", status)
	}
	status, _ = e.call(t, http.MethodDelete, fmt.Sprintf("/api/history/%d", id), nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 on double delete, got %d", status)
	}
	status, _ = e.call(t, http.MethodDelete, "/api/history/notanumber", nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", status)
	}
}

func TestHistoryClear(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	e.hist.Add(model.HistoryEntry{Topic: "a", Attempt: 1})
	e.hist.Add(model.HistoryEntry{Topic: "b", Attempt: 1})

	status, _ := e.call(t, http.MethodDelete, "/api/history", nil)
	if status != http.StatusOK {
		t.Fatalf("clear: status %d", status)
	}
	entries, _ := e.hist.GetAll()
	if len(entries) != 0 {
		t.Errorf("expected empty history, got %d entries", len(entries))
	}
}

func TestHistorySortedNewestFirst(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	e.hist.Add(model.HistoryEntry{Topic: "old", Timestamp: 100, Attempt: 1})
	e.hist.Add(model.HistoryEntry{Topic: "new", Timestamp: 300, Attempt: 1})
	e.hist.Add(model.HistoryEntry{Topic: "mid", Timestamp: 200, Attempt: 1})

	_, body := e.call(t, http.MethodGet, "/api/history", nil)
	entries := body["entries"].([]any)
	var topics []string
	for _, raw := range entries {
		topics = append(topics, raw.(map[string]any)["topic"].(string))
	}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if topics[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, topics)
		}
	}
}

func TestHistoryDegradesWhenStorageFails(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	e.hist.Err = errors.New("disk full")

	status, body := e.call(t, http.MethodGet, "/api/history", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with degradation message, got %d", status)
	}
	if body["message"] == nil {
		t.Error("expected a degradation message")
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 0 {
		t.Errorf("expected empty entries, got %v", body["entries"])
	}

	status, _ = e.call(t, http.MethodDelete, "/api/history", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for clear on failed storage, got %d", status)
	}
}

func TestReplay(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	ua := "Correct 1"
	id, _ := e.hist.Add(model.HistoryEntry{
		Topic: "go", Difficulty: "medium", Score: 1, TotalQuestions: 1, Attempt: 1,
		Answers: []model.HistoryAnswer{{
			Answer: model.Answer{
				Question: "Question 1?", UserAnswer: &ua,
				CorrectAnswer: "Correct 1", IsCorrect: true, Attempt: 1,
			},
			IncorrectAnswers: []string{"Wrong 1-a", "Wrong 1-b", "Wrong 1-c"},
		}},
	})

	status, body := e.call(t, http.MethodPost, fmt.Sprintf("/api/session/replay/%d", id), nil)
	if status != http.StatusOK {
		t.Fatalf("replay: status %d, body %v", status, body)
	}
	if body["phase"] != "question" {
		t.Errorf("expected question phase, got %v", body["phase"])
	}
	if body["topic"] != "go" {
		t.Errorf("expected replayed topic, got %v", body["topic"])
	}

	status, _ = e.call(t, http.MethodPost, "/api/session/replay/9999", nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown entry, got %d", status)
	}
}

func TestRetryAndReset(t *testing.T) {
	e := newTestEnv(t, &stubGen{})

	status, _ := e.call(t, http.MethodPost, "/api/session/retry", nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for retry without a quiz, got %d", status)
	}

	startQuiz(t, e, 1)
	e.call(t, http.MethodPost, "/api/session/next", nil)
	status, body := e.call(t, http.MethodPost, "/api/session/retry", nil)
	if status != http.StatusOK || body["phase"] != "question" {
		t.Fatalf("retry: status %d, phase %v", status, body["phase"])
	}
	if body["attempt"] != float64(2) {
		t.Errorf("expected attempt 2, got %v", body["attempt"])
	}

	status, body = e.call(t, http.MethodPost, "/api/session/reset", nil)
	if status != http.StatusOK || body["phase"] != "form" {
		t.Fatalf("reset: status %d, phase %v", status, body["phase"])
	}
}

func TestHintAndExplainStreams(t *testing.T) {
	e := newTestEnv(t, &stubGen{})

	// No quiz yet.
	status, _ := e.call(t, http.MethodPost, "/api/hint", nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for hint without a question, got %d", status)
	}

	startQuiz(t, e, 1)

	resp, err := http.Post(e.srv.URL+"/api/hint", "application/json", nil)
	if err != nil {
		t.Fatalf("hint: %v", err)
	}
	hint, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hint: status %d", resp.StatusCode)
	}
	if got := string(hint); got != "Think about the obvious." {
		t.Errorf("unexpected hint stream: %q", got)
	}

	// Explain before answering is rejected.
	status, _ = e.call(t, http.MethodPost, "/api/explain", nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for explain before answering, got %d", status)
	}

	e.call(t, http.MethodPost, "/api/session/answer", map[string]string{"answer": "Correct 1"})

	// Hint after answering is rejected.
	status, _ = e.call(t, http.MethodPost, "/api/hint", nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for hint after answering, got %d", status)
	}

	resp, err = http.Post(e.srv.URL+"/api/explain", "application/json", nil)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	explanation, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(explanation), "Because") {
		t.Errorf("unexpected explanation: %q", explanation)
	}
}

func TestPrefs(t *testing.T) {
	e := newTestEnv(t, &stubGen{})

	status, body := e.call(t, http.MethodGet, "/api/prefs", nil)
	if status != http.StatusOK {
		t.Fatalf("get prefs: status %d", status)
	}
	if body["soundEnabled"] != true || body["forceEnglish"] != false {
		t.Errorf("expected default prefs, got %v", body)
	}

	status, _ = e.call(t, http.MethodPut, "/api/prefs",
		model.Prefs{SoundEnabled: false, ForceEnglish: true})
	if status != http.StatusOK {
		t.Fatalf("put prefs: status %d", status)
	}

	_, body = e.call(t, http.MethodGet, "/api/prefs", nil)
	if body["soundEnabled"] != false || body["forceEnglish"] != true {
		t.Errorf("prefs did not round trip: %v", body)
	}
}

func TestPrefsUnavailable(t *testing.T) {
	initI18n(t)
	hist := store.NewMemStore()
	ctrl := session.New(config.Default(), &stubGen{}, hist)
	h := New(ctrl, hist, nil, stubAssistant{}, config.Default())

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en", nil))
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	e := &testEnv{srv: srv, hist: hist}

	// Reads fall back to defaults; writes report the outage.
	status, body := e.call(t, http.MethodGet, "/api/prefs", nil)
	if status != http.StatusOK || body["soundEnabled"] != true {
		t.Errorf("expected default prefs, got %d %v", status, body)
	}
	status, _ = e.call(t, http.MethodPut, "/api/prefs", model.DefaultPrefs())
	if status != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for prefs write without storage, got %d", status)
	}
}

func TestConfigEndpoint(t *testing.T) {
	e := newTestEnv(t, &stubGen{})
	status, body := e.call(t, http.MethodGet, "/api/config", nil)
	if status != http.StatusOK {
		t.Fatalf("config: status %d", status)
	}
	settings, ok := body["settings"].(map[string]any)
	if !ok {
		t.Fatalf("expected settings object, got %v", body)
	}
	questions := settings["questions"].(map[string]any)
	if questions["min"] != float64(1) || questions["max"] != float64(5) {
		t.Errorf("unexpected question limits: %v", questions)
	}
}
