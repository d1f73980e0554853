package session

import (
	"math/rand/v2"

	"github.com/pavelanni/quizcraft/internal/model"
)

// shuffleChoices returns a uniform random permutation of the question's
// incorrect answers plus the correct one. Every call draws a fresh
// ordering; the result is a permutation of the input set, never a subset.
func shuffleChoices(rng *rand.Rand, q model.Question) []string {
	choices := make([]string, 0, len(q.IncorrectAnswers)+1)
	choices = append(choices, q.IncorrectAnswers...)
	choices = append(choices, q.CorrectAnswer)
	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}
