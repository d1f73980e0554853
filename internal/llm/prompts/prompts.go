// Package prompts builds the prompt strings sent to the LLM. Keeping them
// in one place makes the wording testable and easy to tune.
package prompts

import (
	"fmt"
	"strings"
)

// BuildQuizPrompt asks for a JSON quiz with the exact shape the client
// validates against.
func BuildQuizPrompt(topic string, numQuestions int, difficulty string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a quiz with %d multiple choice questions about %q at %s difficulty.\n",
		numQuestions, topic, difficulty)
	sb.WriteString("Return a JSON object with an array of questions. Each question should have:\n")
	sb.WriteString("- A question text\n")
	sb.WriteString("- One correct answer\n")
	sb.WriteString("- Three plausible but incorrect answers\n")
	sb.WriteString(`Format: { "questions": [{ "question": "", "correctAnswer": "", "incorrectAnswers": ["","",""] }] }`)
	sb.WriteString("\n")
	return sb.String()
}

// BuildHintPrompt asks for a subtle hint that does not give the answer away.
func BuildHintPrompt(question, correctAnswer string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "For this question: %q\n", question)
	fmt.Fprintf(&sb, "With the correct answer: %q\n\n", correctAnswer)
	sb.WriteString("Give a very subtle hint that helps point in the right direction without giving away the answer.\n")
	sb.WriteString("The hint should be vague but helpful.\n")
	sb.WriteString("Keep it to one short sentence.\n")
	return sb.String()
}

// BuildExplainPrompt asks for a plain-language explanation of the correct
// answer. When the user answered (rather than skipping), the explanation
// also addresses why their answer was wrong.
func BuildExplainPrompt(question, correctAnswer string, userAnswer *string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", question)
	fmt.Fprintf(&sb, "Correct Answer: %s\n", correctAnswer)
	if userAnswer != nil {
		fmt.Fprintf(&sb, "User's Answer: %s\n", *userAnswer)
	}
	sb.WriteString("\nPlease explain in simple, easy to understand language:\n")
	sb.WriteString("1. Why the correct answer is right\n")
	if userAnswer != nil {
		sb.WriteString("2. If the user's answer was different, explain why it wasn't correct\n")
	}
	sb.WriteString("Keep the explanation brief and use everyday language.\n")
	return sb.String()
}
