package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
)

// Store is the persistent store of quizzes, participants and answers.
type Store interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// GetQuizByCode resolves a join code, preferring a quiz that is not completed.
	GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	// ListQuizzes returns a teacher's quizzes, newest first.
	ListQuizzes(ctx context.Context, teacherID string) ([]domain.Quiz, error)
	// TransitionQuiz moves a quiz from one status to another only if it is
	// currently in from; otherwise it returns domain.ErrStatusConflict.
	TransitionQuiz(ctx context.Context, quizID string, from, to domain.QuizStatus, at time.Time) (domain.Quiz, error)

	SaveTeacher(ctx context.Context, teacher domain.Teacher) error
	GetTeacher(ctx context.Context, teacherID string) (domain.Teacher, error)

	// AddParticipant inserts the participant unless (quiz, user) already
	// exists, in which case the existing row is returned with created=false.
	AddParticipant(ctx context.Context, participant domain.Participant) (p domain.Participant, created bool, err error)
	GetParticipant(ctx context.Context, quizID, userID string) (domain.Participant, error)
	// ListParticipants returns participants in join order.
	ListParticipants(ctx context.Context, quizID string) ([]domain.Participant, error)

	CreateTeam(ctx context.Context, team domain.Team) error
	GetTeam(ctx context.Context, teamID string) (domain.Team, error)
	// ListTeams returns the teams of a quiz in creation order.
	ListTeams(ctx context.Context, quizID string) ([]domain.Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string) error
	RemoveTeamMember(ctx context.Context, teamID, userID string) error

	ListOptions(ctx context.Context, quizID string) ([]domain.Option, error)
	// GetOption looks an option up across all quizzes.
	GetOption(ctx context.Context, optionID string) (domain.Option, error)

	// RecordAnswer atomically inserts the answer and, when it is correct,
	// increments the participant's score by one. It returns the score after
	// the write, or domain.ErrDuplicateAnswer if (question, user) exists.
	RecordAnswer(ctx context.Context, answer domain.Answer) (int, error)
	ListAnswers(ctx context.Context, questionID string) ([]domain.Answer, error)
}

// OptionResolver resolves an option of a quiz, typically through a cache.
type OptionResolver interface {
	ResolveOption(ctx context.Context, quizID, optionID string) (domain.Option, error)
}

// AnswerGuard linearizes submissions for the same (question, user) pair.
type AnswerGuard interface {
	// Claim reports true for exactly one caller per pair.
	Claim(ctx context.Context, questionID, userID string) (bool, error)
	// Release frees a claim whose write did not happen.
	Release(ctx context.Context, questionID, userID string) error
	// Forget drops every claim for the given questions.
	Forget(ctx context.Context, questionIDs []string) error
}

// SessionRepository abstracts how per-quiz session state is held (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(quizID string) *Session
	Get(quizID string) (*Session, bool)
	DeleteIfIdle(quizID string)
	IDs() []string
}

// Notifier delivers final results to the teacher.
type Notifier interface {
	SendQuizResults(ctx context.Context, target, quizTitle string, participantCount int, topThree []domain.LeaderboardEntry) error
}

// Broadcaster fans an event out to a quiz room.
type Broadcaster interface {
	Broadcast(quizID string, event Event)
}
