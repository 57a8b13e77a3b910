package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// MinQuestionTime is the smallest default question time a quiz may declare.
	MinQuestionTime = 5
	codeLength      = 6
)

// NormalizeQuiz fills derived fields (order, labels, type) and validates the
// authored content. The returned quiz is safe to persist.
func NormalizeQuiz(quiz Quiz) (Quiz, error) {
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		return Quiz{}, Invalid("title is required")
	}
	switch quiz.Type {
	case "":
		quiz.Type = QuizTypeIndividual
	case QuizTypeIndividual, QuizTypeTeam:
	default:
		return Quiz{}, Invalid(fmt.Sprintf("unknown quiz type %q", quiz.Type))
	}
	if quiz.DefaultQuestionTime == 0 {
		quiz.DefaultQuestionTime = DefaultQuestionTime
	}
	if quiz.DefaultQuestionTime < MinQuestionTime {
		return Quiz{}, Invalid(fmt.Sprintf("default question time must be at least %d seconds", MinQuestionTime))
	}

	questions := make([]Question, 0, len(quiz.Questions))
	for i, question := range quiz.Questions {
		question.Order = i + 1
		question.QuizID = quiz.ID
		normalized, err := NormalizeQuestion(question)
		if err != nil {
			return Quiz{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, normalized)
	}
	quiz.Questions = questions
	return quiz, nil
}

// NormalizeQuestion validates a question and assigns missing option labels.
func NormalizeQuestion(question Question) (Question, error) {
	question.Text = strings.TrimSpace(question.Text)
	if question.Text == "" {
		return Question{}, Invalid("question text is required")
	}
	if question.TimeLimit < 0 {
		return Question{}, Invalid("time limit cannot be negative")
	}
	if len(question.Options) < 2 {
		return Question{}, ErrTooFewOptions
	}

	options := make([]Option, 0, len(question.Options))
	hasCorrect := false
	for i, opt := range question.Options {
		opt.Text = strings.TrimSpace(opt.Text)
		if opt.Text == "" {
			return Question{}, Invalid("option text is required")
		}
		if opt.Label == "" {
			opt.Label = optionLabel(i)
		}
		opt.QuestionID = question.ID
		hasCorrect = hasCorrect || opt.Correct
		options = append(options, opt)
	}
	if !hasCorrect {
		return Question{}, ErrNoCorrectOption
	}
	question.Options = options
	return question, nil
}

// optionLabel maps 0,1,2... to A,B,C... and AA, AB... past Z.
func optionLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}

// NewJoinCode returns a random 6-digit code without a leading zero.
func NewJoinCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()+100000), nil
}

// IsJoinCode reports whether s looks like a join code.
func IsJoinCode(s string) bool {
	if len(s) != codeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
