package app

import (
	"time"

	"classroom-quiz-service/internal/domain"
)

// EventType names an outbound room event.
type EventType string

const (
	EventParticipantJoined EventType = "participantJoined"
	EventQuizStarted       EventType = "quizStarted"
	EventNewQuestion       EventType = "newQuestion"
	EventAnswerReceived    EventType = "answerReceived"
	EventQuestionResults   EventType = "questionResults"
	EventLeaderboardUpdate EventType = "leaderboardUpdate"
	EventQuizCompleted     EventType = "quizCompleted"
)

// Event is a tagged outbound message. Payload is one of the structs below,
// or domain.Leaderboard for EventLeaderboardUpdate.
type Event struct {
	Type    EventType
	Payload any
}

type ParticipantJoined struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

type QuizStarted struct {
	QuizID        string                `json:"quizId"`
	StartedAt     time.Time             `json:"startedAt"`
	FirstQuestion domain.PublicQuestion `json:"firstQuestion"`
}

type NewQuestion struct {
	Question       domain.PublicQuestion `json:"question"`
	QuestionNumber int                   `json:"questionNumber"`
	TotalQuestions int                   `json:"totalQuestions"`
	HasNext        bool                  `json:"hasNext"`
	EndsAt         time.Time             `json:"endsAt"`
}

type AnswerReceived struct {
	QuestionID    string `json:"questionId"`
	AnsweredCount int64  `json:"answeredCount"`
}

type QuestionResults struct {
	QuestionID    string               `json:"questionId"`
	Stats         domain.QuestionStats `json:"stats"`
	CorrectOption domain.Option        `json:"correctOption"`
}

type QuizCompleted struct {
	QuizID      string             `json:"quizId"`
	CompletedAt time.Time          `json:"completedAt"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

func newQuestionEvent(quiz domain.Quiz, index int, endsAt time.Time) NewQuestion {
	return NewQuestion{
		Question:       quiz.Questions[index].Public(),
		QuestionNumber: index + 1,
		TotalQuestions: len(quiz.Questions),
		HasNext:        index+1 < len(quiz.Questions),
		EndsAt:         endsAt,
	}
}
