package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the quiz configuration loaded once at startup. The shape
// mirrors the settings object the frontend consumes.
type Settings struct {
	Questions    QuestionLimits `mapstructure:"questions" json:"questions" validate:"required"`
	Defaults     Defaults       `mapstructure:"defaults" json:"defaults" validate:"required"`
	Difficulties []Difficulty   `mapstructure:"difficulties" json:"difficulties" validate:"min=1,dive"`
}

// QuestionLimits bounds the number of questions per quiz.
type QuestionLimits struct {
	Default int `mapstructure:"default" json:"default" validate:"min=1"`
	Min     int `mapstructure:"min" json:"min" validate:"min=1"`
	Max     int `mapstructure:"max" json:"max" validate:"gtefield=Min"`
}

// Defaults holds pre-selected form values.
type Defaults struct {
	Difficulty string `mapstructure:"difficulty" json:"difficulty" validate:"required"`
}

// Difficulty is one selectable difficulty level.
type Difficulty struct {
	ID    string `mapstructure:"id" json:"id" validate:"required"`
	Label string `mapstructure:"label" json:"label" validate:"required"`
}

var validate = validator.New()

// Default returns the compiled-in settings used when no config file is
// present or the loaded one fails schema validation.
func Default() Settings {
	return Settings{
		Questions: QuestionLimits{Default: 3, Min: 1, Max: 5},
		Defaults:  Defaults{Difficulty: "medium"},
		Difficulties: []Difficulty{
			{ID: "easy", Label: "Easy"},
			{ID: "medium", Label: "Medium"},
			{ID: "hard", Label: "Hard"},
			{ID: "expert", Label: "Expert"},
		},
	}
}

// Load reads the `settings` section from the given viper instance and
// validates it. A missing section or a schema mismatch falls back to
// Default rather than trusting ambient config.
func Load(v *viper.Viper) Settings {
	if !v.IsSet("settings") {
		return Default()
	}

	var s Settings
	if err := v.UnmarshalKey("settings", &s); err != nil {
		slog.Warn("invalid settings config, using defaults", "error", err)
		return Default()
	}
	if err := s.Validate(); err != nil {
		slog.Warn("settings config failed validation, using defaults", "error", err)
		return Default()
	}
	return s
}

// Validate checks the settings schema and its internal consistency.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var errMsgs []string
		for _, fe := range err.(validator.ValidationErrors) {
			errMsgs = append(errMsgs, fmt.Sprintf("field %s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errMsgs, "; "))
	}
	if s.Questions.Default < s.Questions.Min || s.Questions.Default > s.Questions.Max {
		return fmt.Errorf("default question count %d outside [%d,%d]",
			s.Questions.Default, s.Questions.Min, s.Questions.Max)
	}
	if !s.ValidDifficulty(s.Defaults.Difficulty) {
		return fmt.Errorf("default difficulty %q not among difficulties", s.Defaults.Difficulty)
	}
	return nil
}

// ValidNumQuestions reports whether n is within the configured bounds.
func (s Settings) ValidNumQuestions(n int) bool {
	return n >= s.Questions.Min && n <= s.Questions.Max
}

// ValidDifficulty reports whether id is one of the configured levels.
func (s Settings) ValidDifficulty(id string) bool {
	for _, d := range s.Difficulties {
		if d.ID == id {
			return true
		}
	}
	return false
}
