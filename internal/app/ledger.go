package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"

	"github.com/google/uuid"
)

// AnswerLedger records answers at most once per (question, user) and is the
// only writer of participant scores.
type AnswerLedger struct {
	store   Store
	options OptionResolver
	guard   AnswerGuard
	clock   clock.Clock
	logger  *slog.Logger
}

func NewAnswerLedger(store Store, options OptionResolver, guard AnswerGuard, clk clock.Clock, logger *slog.Logger) *AnswerLedger {
	return &AnswerLedger{
		store:   store,
		options: options,
		guard:   guard,
		clock:   clk,
		logger:  logger.With("component", "ledger"),
	}
}

// Submit validates and records an answer. It returns the answer with its
// correctness and the participant's score after the write. Only a submission
// that passed validation claims the (question, user) pair.
func (l *AnswerLedger) Submit(ctx context.Context, sub domain.AnswerSubmission) (domain.Answer, int, error) {
	option, err := l.resolveOption(ctx, sub.QuizID, sub.OptionID)
	if err != nil {
		return domain.Answer{}, 0, err
	}
	if option.QuestionID != sub.QuestionID {
		return domain.Answer{}, 0, domain.ErrOptionMismatch
	}
	participant, err := l.store.GetParticipant(ctx, sub.QuizID, sub.UserID)
	if err != nil {
		return domain.Answer{}, 0, err
	}

	claimed, err := l.guard.Claim(ctx, sub.QuestionID, sub.UserID)
	if err != nil {
		return domain.Answer{}, 0, fmt.Errorf("claim answer: %w", err)
	}
	if !claimed {
		return domain.Answer{}, 0, domain.ErrDuplicateAnswer
	}

	answer, score, err := l.record(ctx, sub, option, participant)
	if err != nil && !errors.Is(err, domain.ErrDuplicateAnswer) {
		// the pair was never written; let a retry through
		if releaseErr := l.guard.Release(context.WithoutCancel(ctx), sub.QuestionID, sub.UserID); releaseErr != nil {
			l.logger.Warn("release answer claim", "question_id", sub.QuestionID, "user_id", sub.UserID, "error", releaseErr)
		}
	}
	return answer, score, err
}

// resolveOption looks the option up in the quiz's cached options, then in the
// whole store. An option of another quiz never belongs to the question.
func (l *AnswerLedger) resolveOption(ctx context.Context, quizID, optionID string) (domain.Option, error) {
	option, err := l.options.ResolveOption(ctx, quizID, optionID)
	if !errors.Is(err, domain.ErrUnknownOption) {
		return option, err
	}
	if _, err := l.store.GetOption(ctx, optionID); err != nil {
		return domain.Option{}, err
	}
	return domain.Option{}, domain.ErrOptionMismatch
}

func (l *AnswerLedger) record(ctx context.Context, sub domain.AnswerSubmission, option domain.Option, participant domain.Participant) (domain.Answer, int, error) {
	now := l.clock.Now()
	var spent int64
	if !sub.OpenedAt.IsZero() && now.After(sub.OpenedAt) {
		spent = now.Sub(sub.OpenedAt).Milliseconds()
	}
	answer := domain.Answer{
		ID:            uuid.NewString(),
		QuizID:        sub.QuizID,
		QuestionID:    sub.QuestionID,
		ParticipantID: participant.ID,
		UserID:        sub.UserID,
		OptionID:      option.ID,
		Correct:       option.Correct,
		TimeSpentMs:   spent,
		SubmittedAt:   now,
	}

	score, err := l.store.RecordAnswer(ctx, answer)
	if err != nil {
		return domain.Answer{}, 0, err
	}
	l.logger.Debug("answer recorded",
		"quiz_id", sub.QuizID, "question_id", sub.QuestionID, "user_id", sub.UserID,
		"correct", answer.Correct, "score", score)
	return answer, score, nil
}

// StatsFor summarises the answers to question. Percentages are 0 when no
// answers exist.
func (l *AnswerLedger) StatsFor(ctx context.Context, question domain.Question) (domain.QuestionStats, error) {
	answers, err := l.store.ListAnswers(ctx, question.ID)
	if err != nil {
		return domain.QuestionStats{}, fmt.Errorf("list answers: %w", err)
	}
	return computeStats(question, answers), nil
}

// StatsForID loads the question from its quiz and summarises it.
func (l *AnswerLedger) StatsForID(ctx context.Context, quizID, questionID string) (domain.QuestionStats, error) {
	quiz, err := l.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return domain.QuestionStats{}, domain.ErrQuestionNotFound
	}
	return l.StatsFor(ctx, question)
}

// Forget drops the answer claims of finished questions. Recorded answers stay
// in the store.
func (l *AnswerLedger) Forget(ctx context.Context, questionIDs []string) error {
	return l.guard.Forget(ctx, questionIDs)
}

func computeStats(question domain.Question, answers []domain.Answer) domain.QuestionStats {
	selected := make(map[string]int, len(question.Options))
	correct := 0
	for _, a := range answers {
		selected[a.OptionID]++
		if a.Correct {
			correct++
		}
	}

	total := len(answers)
	stats := domain.QuestionStats{
		QuestionID:       question.ID,
		TotalAnswers:     total,
		CorrectAnswers:   correct,
		IncorrectAnswers: total - correct,
		Accuracy:         percentage(correct, total),
		OptionStats:      make([]domain.OptionStats, 0, len(question.Options)),
	}
	for _, opt := range question.Options {
		stats.OptionStats = append(stats.OptionStats, domain.OptionStats{
			OptionID:      opt.ID,
			Label:         opt.Label,
			Text:          opt.Text,
			Correct:       opt.Correct,
			SelectedCount: selected[opt.ID],
			Percentage:    percentage(selected[opt.ID], total),
		})
	}
	return stats
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
