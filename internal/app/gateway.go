package app

import (
	"context"
	"fmt"
	"log/slog"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"
)

// Caller is the connection a request arrived on and who sent it.
type Caller struct {
	Conn     Conn
	Identity domain.Identity
}

// Reply is the result returned to the requesting connection only.
type Reply struct {
	RequestType RequestType `json:"requestType"`
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
	Code        string      `json:"code,omitempty"`
	Data        any         `json:"data,omitempty"`
}

// JoinResult is the snapshot pushed to a connection that joined a quiz.
type JoinResult struct {
	Participant     domain.Participant `json:"participant"`
	Quiz            domain.PublicQuiz  `json:"quiz"`
	Leaderboard     domain.Leaderboard `json:"leaderboard"`
	CurrentQuestion *NewQuestion       `json:"currentQuestion,omitempty"`
}

// AnswerResult is the private feedback for a submitted answer.
type AnswerResult struct {
	Answer  domain.Answer `json:"answer"`
	Correct bool          `json:"isCorrect"`
	Score   int           `json:"score"`
}

// GatewayDeps are the components requests are routed to.
type GatewayDeps struct {
	Quizzes   *QuizService
	Sequencer *Sequencer
	Ranking   *RankingEngine
	Registry  *Registry
	Clock     clock.Clock
	Logger    *slog.Logger
	// RequireAuth makes start/complete teacher-only and ignores payload user ids.
	RequireAuth bool
}

// Gateway routes inbound requests to the quiz components and turns every
// failure into a Reply.
type Gateway struct {
	quizzes     *QuizService
	sequencer   *Sequencer
	ranking     *RankingEngine
	registry    *Registry
	clock       clock.Clock
	logger      *slog.Logger
	requireAuth bool
}

func NewGateway(deps GatewayDeps) *Gateway {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Gateway{
		quizzes:     deps.Quizzes,
		sequencer:   deps.Sequencer,
		ranking:     deps.Ranking,
		registry:    deps.Registry,
		clock:       clk,
		logger:      deps.Logger.With("component", "gateway"),
		requireAuth: deps.RequireAuth,
	}
}

// Dispatch handles one request. It never panics and never returns an error;
// failures are reported in the Reply.
func (g *Gateway) Dispatch(ctx context.Context, caller Caller, req Request) (reply Reply) {
	requestType := req.Type()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("request panicked", "request", requestType, "panic", fmt.Sprint(r))
			reply = ErrorReply(requestType, fmt.Errorf("panic: %v", r))
		}
	}()

	data, err := g.handle(ctx, caller, req)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			g.logger.Error("request failed", "request", requestType, "error", err)
		}
		return ErrorReply(requestType, err)
	}
	return Reply{RequestType: requestType, Success: true, Data: data}
}

// ErrorReply converts err into a failed Reply. Internal errors are not
// exposed to clients.
func ErrorReply(requestType RequestType, err error) Reply {
	message := err.Error()
	if domain.KindOf(err) == domain.KindInternal {
		message = "internal error"
	}
	return Reply{RequestType: requestType, Success: false, Error: message, Code: domain.CodeOf(err)}
}

// Disconnect removes the connection from every room. Nothing else is
// cancelled.
func (g *Gateway) Disconnect(conn Conn) {
	g.registry.Unregister(conn)
}

func (g *Gateway) handle(ctx context.Context, caller Caller, req Request) (any, error) {
	switch r := req.(type) {
	case *JoinQuiz:
		return g.join(ctx, caller, r)
	case *StartQuiz:
		return g.start(ctx, caller, r)
	case *SubmitAnswer:
		return g.submit(ctx, caller, r)
	case *CompleteQuiz:
		return g.complete(ctx, caller, r)
	case *GetLeaderboard:
		return g.ranking.Leaderboard(ctx, r.QuizID)
	default:
		return nil, domain.ErrUnknownRequest
	}
}

func (g *Gateway) join(ctx context.Context, caller Caller, r *JoinQuiz) (JoinResult, error) {
	userID, err := g.userID(caller, r.UserID)
	if err != nil {
		return JoinResult{}, err
	}

	var quiz domain.Quiz
	if r.QuizID != "" {
		quiz, err = g.quizzes.FindQuiz(ctx, r.QuizID)
	} else {
		quiz, err = g.quizzes.FindByCode(ctx, r.Code)
	}
	if err != nil {
		return JoinResult{}, err
	}

	participant, _, err := g.quizzes.Join(ctx, quiz, userID, r.UserName, r.TeamID)
	if err != nil {
		return JoinResult{}, err
	}

	g.registry.Register(quiz.ID, caller.Conn)
	g.registry.Broadcast(quiz.ID, Event{Type: EventParticipantJoined, Payload: ParticipantJoined{
		UserID:    participant.UserID,
		UserName:  participant.DisplayName,
		Timestamp: g.clock.Now(),
	}})

	lb, err := g.ranking.LeaderboardFor(ctx, quiz)
	if err != nil {
		return JoinResult{}, err
	}
	result := JoinResult{Participant: participant, Quiz: quiz.Public(), Leaderboard: lb}
	if current, ok := g.sequencer.CurrentQuestion(quiz.ID); ok {
		result.CurrentQuestion = &current
	}
	return result, nil
}

func (g *Gateway) start(ctx context.Context, caller Caller, r *StartQuiz) (domain.PublicQuiz, error) {
	if err := g.authorizeTeacher(ctx, caller, r.QuizID); err != nil {
		return domain.PublicQuiz{}, err
	}
	// the teacher's connection follows the room it drives
	g.registry.Register(r.QuizID, caller.Conn)

	quiz, err := g.sequencer.Start(ctx, r.QuizID)
	if err != nil {
		return domain.PublicQuiz{}, err
	}
	return quiz.Public(), nil
}

func (g *Gateway) submit(ctx context.Context, caller Caller, r *SubmitAnswer) (AnswerResult, error) {
	userID, err := g.userID(caller, r.UserID)
	if err != nil {
		return AnswerResult{}, err
	}
	answer, score, err := g.sequencer.SubmitAnswer(ctx, domain.AnswerSubmission{
		QuizID:     r.QuizID,
		QuestionID: r.QuestionID,
		UserID:     userID,
		OptionID:   r.OptionID,
	})
	if err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{Answer: answer, Correct: answer.Correct, Score: score}, nil
}

func (g *Gateway) complete(ctx context.Context, caller Caller, r *CompleteQuiz) (domain.Leaderboard, error) {
	if err := g.authorizeTeacher(ctx, caller, r.QuizID); err != nil {
		return domain.Leaderboard{}, err
	}
	return g.sequencer.Complete(ctx, r.QuizID)
}

// userID picks the authenticated user over the payload.
func (g *Gateway) userID(caller Caller, payloadUserID string) (string, error) {
	if !caller.Identity.Anonymous() {
		return caller.Identity.UserID, nil
	}
	if g.requireAuth {
		return "", domain.ErrNotAuthenticated
	}
	if payloadUserID == "" {
		return "", domain.Invalid("userId is required")
	}
	return payloadUserID, nil
}

func (g *Gateway) authorizeTeacher(ctx context.Context, caller Caller, quizID string) error {
	if !g.requireAuth {
		return nil
	}
	if caller.Identity.Anonymous() {
		return domain.ErrNotAuthenticated
	}
	if !caller.Identity.IsTeacher() {
		return domain.ErrForbidden
	}
	quiz, err := g.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.TeacherID != caller.Identity.UserID {
		return domain.ErrForbidden
	}
	return nil
}
