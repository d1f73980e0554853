package model

// Phase represents where the quiz session currently is.
type Phase string

const (
	PhaseForm     Phase = "form"
	PhaseLoading  Phase = "loading"
	PhaseQuestion Phase = "question"
	PhaseSummary  Phase = "summary"
)

// Question is a single multiple-choice question. Immutable once generated.
type Question struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

// Quiz is one generated set of questions. A retry reuses the same Quiz
// value; it is never regenerated or mutated.
type Quiz struct {
	Questions  []Question `json:"questions"`
	Topic      string     `json:"topic"`
	Difficulty string     `json:"difficulty"`
}

// Answer records the outcome of one question in one attempt. The question
// text doubles as the join key back to the Quiz. UserAnswer is nil exactly
// when the question was skipped.
type Answer struct {
	Question      string  `json:"question"`
	UserAnswer    *string `json:"userAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
	IsCorrect     bool    `json:"isCorrect"`
	Skipped       bool    `json:"skipped"`
	Attempt       int     `json:"attempt"`
}

// HistoryAnswer is an Answer enriched with the question's distractors so a
// stored entry can reconstruct the full Question set for replay.
type HistoryAnswer struct {
	Answer
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

// HistoryEntry is one persisted scored attempt.
type HistoryEntry struct {
	ID             int64           `json:"id"`
	Timestamp      int64           `json:"timestamp"` // epoch millis
	Topic          string          `json:"topic"`
	Difficulty     string          `json:"difficulty"`
	Score          int             `json:"score"`
	LastScore      *int            `json:"lastScore,omitempty"`
	TotalQuestions int             `json:"totalQuestions"`
	Attempt        int             `json:"attempt"`
	Answers        []HistoryAnswer `json:"answers"`
}

// Questions rebuilds the original question set from the stored answers,
// taking the first occurrence of each question text in order. Entries hold
// one answer record per question per attempt, so later attempts repeat the
// same questions.
func (e HistoryEntry) Questions() []Question {
	seen := make(map[string]bool, e.TotalQuestions)
	var questions []Question
	for _, a := range e.Answers {
		if seen[a.Question] {
			continue
		}
		seen[a.Question] = true
		questions = append(questions, Question{
			Question:         a.Question,
			CorrectAnswer:    a.CorrectAnswer,
			IncorrectAnswers: a.IncorrectAnswers,
		})
	}
	return questions
}

// Prefs holds user preferences persisted beside the quiz history.
type Prefs struct {
	SoundEnabled bool `json:"soundEnabled"`
	ForceEnglish bool `json:"forceEnglish"`
}

// DefaultPrefs matches the defaults the original settings panel ships with.
func DefaultPrefs() Prefs {
	return Prefs{SoundEnabled: true, ForceEnglish: false}
}
