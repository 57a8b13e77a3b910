package domain

import "time"

// QuizStatus is the lifecycle state of a quiz session.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusActive    QuizStatus = "ACTIVE"
	QuizStatusCompleted QuizStatus = "COMPLETED"
)

// QuizType selects individual or team scoring.
type QuizType string

const (
	QuizTypeIndividual QuizType = "INDIVIDUAL"
	QuizTypeTeam       QuizType = "TEAM"
)

// Role is the caller role resolved by the identity layer.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// DefaultQuestionTime is used when neither the question nor the quiz sets a limit.
const DefaultQuestionTime = 30

// Identity is the authenticated caller, if any.
type Identity struct {
	UserID string
	Role   Role
}

// IsTeacher reports whether the identity carries the teacher role.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// Anonymous reports whether no credential was presented.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// Option represents a possible answer for a question.
type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	Correct    bool   `json:"isCorrect"`
}

// Public strips the correctness flag.
func (o Option) Public() PublicOption {
	return PublicOption{ID: o.ID, Text: o.Text, Label: o.Label}
}

// Question models an MCQ question with at least one correct option.
type Question struct {
	ID        string   `json:"id"`
	QuizID    string   `json:"quizId"`
	Text      string   `json:"text"`
	Order     int      `json:"order"`
	TimeLimit int      `json:"timeLimit"` // seconds; 0 falls back to the quiz default
	Options   []Option `json:"options"`
}

// CorrectOption returns the first option flagged correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Public returns the question as it may be shown while it is live.
func (q Question) Public() PublicQuestion {
	options := make([]PublicOption, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, opt.Public())
	}
	return PublicQuestion{
		ID:        q.ID,
		Text:      q.Text,
		Order:     q.Order,
		TimeLimit: q.TimeLimit,
		Options:   options,
	}
}

// Quiz is a titled set of ordered questions run as a timed session.
type Quiz struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Code                string     `json:"code"`
	TeacherID           string     `json:"teacherId"`
	Type                QuizType   `json:"type"`
	Status              QuizStatus `json:"status"`
	DefaultQuestionTime int        `json:"defaultQuestionTime"`
	Questions           []Question `json:"questions"`
	CreatedAt           time.Time  `json:"createdAt"`
	StartedAt           *time.Time `json:"startedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// Question looks up a question by id.
func (q Quiz) Question(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// TimeLimit resolves the answer window of a question.
func (q Quiz) TimeLimit(question Question) time.Duration {
	seconds := question.TimeLimit
	if seconds <= 0 {
		seconds = q.DefaultQuestionTime
	}
	if seconds <= 0 {
		seconds = DefaultQuestionTime
	}
	return time.Duration(seconds) * time.Second
}

// Public returns the quiz metadata without questions.
func (q Quiz) Public() PublicQuiz {
	return PublicQuiz{
		ID:                  q.ID,
		Title:               q.Title,
		Code:                q.Code,
		Type:                q.Type,
		Status:              q.Status,
		DefaultQuestionTime: q.DefaultQuestionTime,
		QuestionCount:       len(q.Questions),
		StartedAt:           q.StartedAt,
		CompletedAt:         q.CompletedAt,
	}
}

// PublicOption is an option without its correctness flag.
type PublicOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// PublicQuestion is a question without the answer key.
type PublicQuestion struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Order     int            `json:"order"`
	TimeLimit int            `json:"timeLimit"`
	Options   []PublicOption `json:"options"`
}

// PublicQuiz is the quiz summary shared with students.
type PublicQuiz struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Code                string     `json:"code"`
	Type                QuizType   `json:"type"`
	Status              QuizStatus `json:"status"`
	DefaultQuestionTime int        `json:"defaultQuestionTime"`
	QuestionCount       int        `json:"questionCount"`
	StartedAt           *time.Time `json:"startedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// Teacher owns quizzes and may receive results notifications.
type Teacher struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

// Team groups participants of a TEAM quiz. Members is the optional roster of
// user ids allowed to join under the team; an empty roster admits anyone.
type Team struct {
	ID        string    `json:"id"`
	QuizID    string    `json:"quizId"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID is on the roster.
func (t Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"userName"`
	TeamID      string    `json:"teamId,omitempty"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuizID     string
	QuestionID string
	UserID     string
	OptionID   string
	// OpenedAt is when the question window opened; zero when unknown.
	OpenedAt time.Time
}

// Answer is a recorded submission. At most one exists per (question, user).
type Answer struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	QuestionID    string    `json:"questionId"`
	ParticipantID string    `json:"participantId"`
	UserID        string    `json:"userId"`
	OptionID      string    `json:"optionId"`
	Correct       bool      `json:"isCorrect"`
	TimeSpentMs   int64     `json:"timeSpentMs"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"userName"`
	TeamID        string `json:"teamId,omitempty"`
	Score         int    `json:"score"`
}

// TeamStanding aggregates member scores for team quizzes.
type TeamStanding struct {
	Rank    int    `json:"rank"`
	TeamID  string `json:"teamId"`
	Name    string `json:"name,omitempty"`
	Score   int    `json:"score"`
	Members int    `json:"members"`
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	QuizID       string             `json:"quizId"`
	QuizTitle    string             `json:"quizTitle"`
	Participants []LeaderboardEntry `json:"participants"`
	Teams        []TeamStanding     `json:"teams,omitempty"`
}

// Top returns at most n leading entries.
func (l Leaderboard) Top(n int) []LeaderboardEntry {
	if n > len(l.Participants) {
		n = len(l.Participants)
	}
	return l.Participants[:n]
}

// OptionStats reports how often an option was chosen.
type OptionStats struct {
	OptionID      string  `json:"optionId"`
	Label         string  `json:"label"`
	Text          string  `json:"text"`
	Correct       bool    `json:"isCorrect"`
	SelectedCount int     `json:"selectedCount"`
	Percentage    float64 `json:"percentage"`
}

// QuestionStats summarises the answers to one question.
type QuestionStats struct {
	QuestionID       string        `json:"questionId"`
	TotalAnswers     int           `json:"totalAnswers"`
	CorrectAnswers   int           `json:"correctAnswers"`
	IncorrectAnswers int           `json:"incorrectAnswers"`
	Accuracy         float64       `json:"accuracy"`
	OptionStats      []OptionStats `json:"optionStats"`
}
