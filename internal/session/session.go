package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/quizcraft/internal/config"
	"github.com/pavelanni/quizcraft/internal/model"
	"github.com/pavelanni/quizcraft/internal/store"
)

// Sentinel errors for session operations. Generation and validation
// failures are surfaced to the user at the point of the failed action;
// persistence failures never are.
var (
	// ErrValidation rejects bad StartQuiz parameters before any network call.
	ErrValidation = errors.New("invalid quiz parameters")
	// ErrGeneration covers a failed generation call or malformed quiz data.
	ErrGeneration = errors.New("quiz generation failed")
	// ErrGenerationTimeout is returned when the generation call exceeds the
	// configured deadline.
	ErrGenerationTimeout = errors.New("quiz generation timed out")
	// ErrNoQuestion is returned by question-phase operations outside the
	// Question phase.
	ErrNoQuestion = errors.New("no question in progress")
	// ErrAlreadyAnswered is returned when the current question already has a
	// selected answer.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoSavedQuiz is returned by Retry when there is nothing to replay.
	ErrNoSavedQuiz = errors.New("no quiz to retry")
)

// Generator produces a quiz for the given parameters. The controller treats
// it as an opaque async collaborator.
type Generator interface {
	GenerateQuiz(ctx context.Context, topic string, numQuestions int, difficulty string) (*model.Quiz, error)
}

// DefaultGenerationTimeout bounds how long StartQuiz waits for the
// generation collaborator.
const DefaultGenerationTimeout = 30 * time.Second

// Controller owns the in-memory quiz session state and drives the
// Form -> Loading -> Question -> Summary transitions. All operations are
// serialized through a mutex; the controller is safe for use from
// concurrent request handlers but never interleaves two mutations.
type Controller struct {
	cfg        config.Settings
	gen        Generator
	history    store.HistoryStore
	rng        *rand.Rand
	genTimeout time.Duration

	mu             sync.Mutex
	phase          model.Phase
	quiz           *model.Quiz
	savedQuiz      *model.Quiz
	index          int
	answers        []model.Answer
	attempt        int
	previousScores []int
	selected       *string
	choices        []string
	replayEntryID  *int64
	historySaved   bool
	genSeq         uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand injects the random source used for answer shuffling, so tests
// can supply a fixed seed and assert exact permutations.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// WithGenerationTimeout overrides the StartQuiz deadline.
func WithGenerationTimeout(d time.Duration) Option {
	return func(c *Controller) { c.genTimeout = d }
}

// New creates a Controller in the Form phase. The history store may be any
// HistoryStore implementation; persistence failures degrade silently.
func New(cfg config.Settings, gen Generator, history store.HistoryStore, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		gen:        gen,
		history:    history,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		genTimeout: DefaultGenerationTimeout,
		phase:      model.PhaseForm,
		attempt:    1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartQuiz validates the parameters, requests a quiz from the generator
// and, on success, enters the Question phase at question 0. On failure the
// controller returns to the Form phase and no partial quiz is ever exposed.
// A result arriving after the session was reset or restarted is discarded.
func (c *Controller) StartQuiz(ctx context.Context, topic string, numQuestions int, difficulty string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("%w: topic must not be empty", ErrValidation)
	}
	if !c.cfg.ValidNumQuestions(numQuestions) {
		return fmt.Errorf("%w: number of questions %d outside [%d,%d]",
			ErrValidation, numQuestions, c.cfg.Questions.Min, c.cfg.Questions.Max)
	}
	if !c.cfg.ValidDifficulty(difficulty) {
		return fmt.Errorf("%w: unknown difficulty %q", ErrValidation, difficulty)
	}

	c.mu.Lock()
	c.resetLocked()
	c.phase = model.PhaseLoading
	c.genSeq++
	seq := c.genSeq
	c.mu.Unlock()

	genCtx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()
	quiz, err := c.gen.GenerateQuiz(genCtx, topic, numQuestions, difficulty)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genSeq != seq || c.phase != model.PhaseLoading {
		// A newer session superseded this generation; drop the result.
		slog.Debug("discarding stale generation result", "topic", topic)
		return nil
	}
	if err != nil {
		c.phase = model.PhaseForm
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrGenerationTimeout, c.genTimeout)
		}
		return fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if err := validateQuiz(quiz, numQuestions); err != nil {
		c.phase = model.PhaseForm
		return fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	quiz.Topic = topic
	quiz.Difficulty = difficulty
	c.quiz = quiz
	c.savedQuiz = quiz
	c.index = 0
	c.selected = nil
	c.choices = shuffleChoices(c.rng, quiz.Questions[0])
	c.phase = model.PhaseQuestion
	return nil
}

// validateQuiz rejects malformed generation output before it can reach the
// Question phase.
func validateQuiz(q *model.Quiz, wantQuestions int) error {
	if q == nil {
		return errors.New("generator returned no quiz")
	}
	if len(q.Questions) != wantQuestions {
		return fmt.Errorf("expected %d questions, got %d", wantQuestions, len(q.Questions))
	}
	for i, question := range q.Questions {
		if question.Question == "" {
			return fmt.Errorf("question %d has no text", i+1)
		}
		if question.CorrectAnswer == "" {
			return fmt.Errorf("question %d has no correct answer", i+1)
		}
		if len(question.IncorrectAnswers) != 3 {
			return fmt.Errorf("question %d has %d incorrect answers, want 3", i+1, len(question.IncorrectAnswers))
		}
		for _, a := range question.IncorrectAnswers {
			if a == "" {
				return fmt.Errorf("question %d has an empty incorrect answer", i+1)
			}
		}
	}
	return nil
}

// SelectAnswer records the user's choice for the current question. At most
// one answer per question per attempt; the session does not auto-advance.
func (c *Controller) SelectAnswer(choice string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseQuestion {
		return ErrNoQuestion
	}
	if c.selected != nil {
		return ErrAlreadyAnswered
	}
	found := false
	for _, ch := range c.choices {
		if ch == choice {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q is not one of the offered choices", ErrValidation, choice)
	}

	q := c.quiz.Questions[c.index]
	c.answers = append(c.answers, model.Answer{
		Question:      q.Question,
		UserAnswer:    &choice,
		CorrectAnswer: q.CorrectAnswer,
		IsCorrect:     choice == q.CorrectAnswer,
		Skipped:       false,
		Attempt:       c.attempt,
	})
	c.selected = &choice
	return nil
}

// Advance moves to the next question, recording a skipped answer when
// nothing was selected. On the last question it transitions to Summary and
// persists the attempt best-effort.
func (c *Controller) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseQuestion {
		return ErrNoQuestion
	}

	if c.selected == nil {
		q := c.quiz.Questions[c.index]
		c.answers = append(c.answers, model.Answer{
			Question:      q.Question,
			UserAnswer:    nil,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     false,
			Skipped:       true,
			Attempt:       c.attempt,
		})
	}

	if c.index == len(c.quiz.Questions)-1 {
		c.phase = model.PhaseSummary
		c.persistAttemptLocked()
		return nil
	}

	c.index++
	c.choices = shuffleChoices(c.rng, c.quiz.Questions[c.index])
	c.selected = nil
	return nil
}

// persistAttemptLocked writes the finished attempt to the history store.
// A replayed entry is updated in place exactly once; everything else is a
// fresh insert carrying the previous score for the same topic+difficulty.
// Storage faults are logged and leave the session fully functional.
func (c *Controller) persistAttemptLocked() {
	if c.history == nil {
		return
	}

	score := c.scoreLocked(c.attempt)
	now := time.Now().UnixMilli()
	attempt := c.attempt
	answers := c.historyAnswersLocked()

	if c.replayEntryID != nil {
		id := *c.replayEntryID
		c.replayEntryID = nil // the update-or-insert decision is consumed here
		var last *int
		if len(c.previousScores) > 0 {
			v := c.previousScores[len(c.previousScores)-1]
			last = &v
		}
		err := c.history.Update(id, store.UpdateFields{
			Timestamp: &now,
			Score:     &score,
			LastScore: last,
			Attempt:   &attempt,
			Answers:   answers,
		})
		if err != nil {
			slog.Warn("quiz history not saved", "entry_id", id, "error", err)
			return
		}
		c.historySaved = true
		return
	}

	var last *int
	prev, err := c.history.FindByTopicAndDifficulty(c.quiz.Topic, c.quiz.Difficulty)
	if err != nil {
		slog.Warn("previous score lookup failed", "topic", c.quiz.Topic, "error", err)
	} else if prev != nil {
		v := prev.Score
		last = &v
	}

	_, err = c.history.Add(model.HistoryEntry{
		Timestamp:      now,
		Topic:          c.quiz.Topic,
		Difficulty:     c.quiz.Difficulty,
		Score:          score,
		LastScore:      last,
		TotalQuestions: len(c.quiz.Questions),
		Attempt:        attempt,
		Answers:        answers,
	})
	if err != nil {
		slog.Warn("quiz history not saved", "topic", c.quiz.Topic, "error", err)
		return
	}
	c.historySaved = true
}

// historyAnswersLocked enriches the full answer log with each question's
// distractors, joining on the question text.
func (c *Controller) historyAnswersLocked() []model.HistoryAnswer {
	distractors := make(map[string][]string, len(c.quiz.Questions))
	for _, q := range c.quiz.Questions {
		distractors[q.Question] = q.IncorrectAnswers
	}
	answers := make([]model.HistoryAnswer, 0, len(c.answers))
	for _, a := range c.answers {
		answers = append(answers, model.HistoryAnswer{
			Answer:           a,
			IncorrectAnswers: distractors[a.Question],
		})
	}
	return answers
}

// Retry replays the saved quiz as a new attempt. The answer log is kept so
// history shows all attempts, tagged by attempt number.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.savedQuiz == nil {
		return ErrNoSavedQuiz
	}

	c.previousScores = append(c.previousScores, c.scoreLocked(c.attempt))
	c.quiz = c.savedQuiz
	c.index = 0
	c.selected = nil
	c.attempt++
	c.historySaved = false
	c.choices = shuffleChoices(c.rng, c.quiz.Questions[0])
	c.phase = model.PhaseQuestion
	return nil
}

// StartNewQuiz fully resets the controller back to the Form phase. Any
// in-flight generation result is discarded when it arrives.
func (c *Controller) StartNewQuiz() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genSeq++
	c.resetLocked()
	c.phase = model.PhaseForm
}

func (c *Controller) resetLocked() {
	c.quiz = nil
	c.savedQuiz = nil
	c.index = 0
	c.answers = nil
	c.attempt = 1
	c.previousScores = nil
	c.selected = nil
	c.choices = nil
	c.replayEntryID = nil
	c.historySaved = false
}

// LoadFromHistory reconstructs a playable quiz from a stored entry. The
// entry's id is remembered so the next Summary updates it in place instead
// of inserting a duplicate.
func (c *Controller) LoadFromHistory(entry model.HistoryEntry) error {
	questions := entry.Questions()
	if len(questions) == 0 {
		return fmt.Errorf("%w: history entry %d has no answers to rebuild from", ErrValidation, entry.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.genSeq++
	quiz := &model.Quiz{Questions: questions, Topic: entry.Topic, Difficulty: entry.Difficulty}
	c.quiz = quiz
	c.savedQuiz = quiz
	c.index = 0
	c.answers = nil
	c.attempt = 1
	c.previousScores = []int{entry.Score}
	c.selected = nil
	c.historySaved = false
	id := entry.ID
	c.replayEntryID = &id
	c.choices = shuffleChoices(c.rng, quiz.Questions[0])
	c.phase = model.PhaseQuestion
	return nil
}

// Score returns the number of correct answers recorded for the given
// attempt.
func (c *Controller) Score(attempt int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scoreLocked(attempt)
}

func (c *Controller) scoreLocked(attempt int) int {
	score := 0
	for _, a := range c.answers {
		if a.Attempt == attempt && a.IsCorrect {
			score++
		}
	}
	return score
}

// Percentage converts a score to a display percentage rounded to the
// nearest integer. A zero denominator yields 0.
func Percentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

// CurrentQuestion returns the question being asked and the answer selected
// for it, if any. Used by the hint and explanation collaborators.
func (c *Controller) CurrentQuestion() (model.Question, *string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseQuestion {
		return model.Question{}, nil, ErrNoQuestion
	}
	return c.quiz.Questions[c.index], c.selected, nil
}

// Snapshot is a phase-dependent view of the session for display.
type Snapshot struct {
	Phase          model.Phase    `json:"phase"`
	Topic          string         `json:"topic,omitempty"`
	Difficulty     string         `json:"difficulty,omitempty"`
	Attempt        int            `json:"attempt"`
	QuestionIndex  int            `json:"questionIndex"`
	TotalQuestions int            `json:"totalQuestions"`
	Question       string         `json:"question,omitempty"`
	Choices        []string       `json:"choices,omitempty"`
	SelectedAnswer *string        `json:"selectedAnswer,omitempty"`
	CorrectAnswer  string         `json:"correctAnswer,omitempty"`
	Score          int            `json:"score"`
	Percentage     int            `json:"percentage"`
	PreviousScores []int          `json:"previousScores,omitempty"`
	Answers        []model.Answer `json:"answers,omitempty"`
	CorrectCount   int            `json:"correctCount"`
	IncorrectCount int            `json:"incorrectCount"`
	SkippedCount   int            `json:"skippedCount"`
	HistorySaved   bool           `json:"historySaved"`
}

// Snapshot returns the current view of the session. The correct answer is
// revealed only once the current question has been answered; the full
// answer log is exposed only in the Summary phase.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:          c.phase,
		Attempt:        c.attempt,
		QuestionIndex:  c.index,
		PreviousScores: c.previousScores,
		HistorySaved:   c.historySaved,
	}
	if c.quiz != nil {
		snap.Topic = c.quiz.Topic
		snap.Difficulty = c.quiz.Difficulty
		snap.TotalQuestions = len(c.quiz.Questions)
		snap.Score = c.scoreLocked(c.attempt)
		snap.Percentage = Percentage(snap.Score, snap.TotalQuestions)
	}

	switch c.phase {
	case model.PhaseQuestion:
		q := c.quiz.Questions[c.index]
		snap.Question = q.Question
		snap.Choices = c.choices
		snap.SelectedAnswer = c.selected
		if c.selected != nil {
			snap.CorrectAnswer = q.CorrectAnswer
		}
	case model.PhaseSummary:
		snap.Answers = c.answers
		for _, a := range c.answers {
			switch {
			case a.Skipped:
				snap.SkippedCount++
			case a.IsCorrect:
				snap.CorrectCount++
			default:
				snap.IncorrectCount++
			}
		}
	}
	return snap
}
