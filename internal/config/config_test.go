package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("compiled-in defaults must validate: %v", err)
	}
}

func TestLoadMissingSection(t *testing.T) {
	v := viper.New()
	s := Load(v)
	if s.Questions.Default != Default().Questions.Default {
		t.Errorf("expected defaults when settings section is absent, got %+v", s)
	}
}

func TestLoadValidSettings(t *testing.T) {
	v := viper.New()
	v.Set("settings", map[string]any{
		"questions": map[string]any{"default": 5, "min": 2, "max": 10},
		"defaults":  map[string]any{"difficulty": "casual"},
		"difficulties": []map[string]any{
			{"id": "casual", "label": "Casual"},
			{"id": "serious", "label": "Serious"},
		},
	})

	s := Load(v)
	if s.Questions.Default != 5 || s.Questions.Min != 2 || s.Questions.Max != 10 {
		t.Errorf("question limits not loaded: %+v", s.Questions)
	}
	if s.Defaults.Difficulty != "casual" {
		t.Errorf("default difficulty not loaded: %q", s.Defaults.Difficulty)
	}
	if len(s.Difficulties) != 2 {
		t.Errorf("expected 2 difficulties, got %d", len(s.Difficulties))
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
	}{
		{"max below min", map[string]any{
			"questions":    map[string]any{"default": 3, "min": 5, "max": 1},
			"defaults":     map[string]any{"difficulty": "easy"},
			"difficulties": []map[string]any{{"id": "easy", "label": "Easy"}},
		}},
		{"default outside bounds", map[string]any{
			"questions":    map[string]any{"default": 9, "min": 1, "max": 5},
			"defaults":     map[string]any{"difficulty": "easy"},
			"difficulties": []map[string]any{{"id": "easy", "label": "Easy"}},
		}},
		{"default difficulty unknown", map[string]any{
			"questions":    map[string]any{"default": 3, "min": 1, "max": 5},
			"defaults":     map[string]any{"difficulty": "nightmare"},
			"difficulties": []map[string]any{{"id": "easy", "label": "Easy"}},
		}},
		{"no difficulties", map[string]any{
			"questions":    map[string]any{"default": 3, "min": 1, "max": 5},
			"defaults":     map[string]any{"difficulty": "easy"},
			"difficulties": []map[string]any{},
		}},
	}
	want := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("settings", tt.settings)
			s := Load(v)
			if s.Questions != want.Questions || s.Defaults != want.Defaults {
				t.Errorf("expected fallback to defaults, got %+v", s)
			}
		})
	}
}

func TestValidNumQuestions(t *testing.T) {
	s := Default()
	for n, want := range map[int]bool{0: false, 1: true, 3: true, 5: true, 6: false} {
		if got := s.ValidNumQuestions(n); got != want {
			t.Errorf("ValidNumQuestions(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestValidDifficulty(t *testing.T) {
	s := Default()
	for id, want := range map[string]bool{
		"easy": true, "medium": true, "hard": true, "expert": true,
		"": false, "EASY": false, "nightmare": false,
	} {
		if got := s.ValidDifficulty(id); got != want {
			t.Errorf("ValidDifficulty(%q) = %v, want %v", id, got, want)
		}
	}
}
