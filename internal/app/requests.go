package app

import (
	"encoding/json"
	"strings"

	"classroom-quiz-service/internal/domain"
)

// RequestType names an inbound gateway request.
type RequestType string

const (
	RequestJoinQuiz       RequestType = "joinQuiz"
	RequestStartQuiz      RequestType = "startQuiz"
	RequestSubmitAnswer   RequestType = "submitAnswer"
	RequestCompleteQuiz   RequestType = "completeQuiz"
	RequestGetLeaderboard RequestType = "getLeaderboard"
)

// Request is one of the typed gateway requests below.
type Request interface {
	Type() RequestType
	validate() error
}

type JoinQuiz struct {
	QuizID   string `json:"quizId"`
	Code     string `json:"code"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	TeamID   string `json:"teamId"`
}

type StartQuiz struct {
	QuizID string `json:"quizId"`
}

type SubmitAnswer struct {
	QuizID     string `json:"quizId"`
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	UserID     string `json:"userId"`
}

type CompleteQuiz struct {
	QuizID string `json:"quizId"`
}

type GetLeaderboard struct {
	QuizID string `json:"quizId"`
}

func (JoinQuiz) Type() RequestType       { return RequestJoinQuiz }
func (StartQuiz) Type() RequestType      { return RequestStartQuiz }
func (SubmitAnswer) Type() RequestType   { return RequestSubmitAnswer }
func (CompleteQuiz) Type() RequestType   { return RequestCompleteQuiz }
func (GetLeaderboard) Type() RequestType { return RequestGetLeaderboard }

func (r *JoinQuiz) validate() error {
	r.QuizID = strings.TrimSpace(r.QuizID)
	r.Code = strings.TrimSpace(r.Code)
	r.UserName = strings.TrimSpace(r.UserName)
	if r.QuizID == "" && r.Code == "" {
		return domain.Invalid("quizId or code is required")
	}
	if r.QuizID == "" && !domain.IsJoinCode(r.Code) {
		return domain.Invalid("code must be 6 digits")
	}
	if r.UserName == "" {
		return domain.Invalid("userName is required")
	}
	return nil
}

func (r *StartQuiz) validate() error {
	return requireQuizID(r.QuizID)
}

func (r *SubmitAnswer) validate() error {
	if err := requireQuizID(r.QuizID); err != nil {
		return err
	}
	if r.QuestionID == "" {
		return domain.Invalid("questionId is required")
	}
	if r.OptionID == "" {
		return domain.Invalid("optionId is required")
	}
	return nil
}

func (r *CompleteQuiz) validate() error {
	return requireQuizID(r.QuizID)
}

func (r *GetLeaderboard) validate() error {
	return requireQuizID(r.QuizID)
}

func requireQuizID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.Invalid("quizId is required")
	}
	return nil
}

// DecodeRequest parses and validates the payload of a request of the given
// type. Unknown types yield domain.ErrUnknownRequest.
func DecodeRequest(requestType string, payload json.RawMessage) (Request, error) {
	var req Request
	switch RequestType(requestType) {
	case RequestJoinQuiz:
		req = &JoinQuiz{}
	case RequestStartQuiz:
		req = &StartQuiz{}
	case RequestSubmitAnswer:
		req = &SubmitAnswer{}
	case RequestCompleteQuiz:
		req = &CompleteQuiz{}
	case RequestGetLeaderboard:
		req = &GetLeaderboard{}
	default:
		return nil, domain.ErrUnknownRequest
	}

	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, domain.Invalid("invalid payload: " + err.Error())
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}
