package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

// APIDeps are the components the JSON API reads from and writes to.
type APIDeps struct {
	Quizzes   *app.QuizService
	Teams     *app.TeamService
	Ranking   *app.RankingEngine
	Ledger    *app.AnswerLedger
	Sequencer *app.Sequencer
	// Verifier enables authentication when non-nil.
	Verifier TokenVerifier
	Logger   *slog.Logger
}

// APIHandler serves quiz authoring and read-only views over JSON.
type APIHandler struct {
	quizzes     *app.QuizService
	teams       *app.TeamService
	ranking     *app.RankingEngine
	ledger      *app.AnswerLedger
	sequencer   *app.Sequencer
	verifier    TokenVerifier
	requireAuth bool
	logger      *slog.Logger
}

func NewAPIHandler(deps APIDeps) *APIHandler {
	return &APIHandler{
		quizzes:     deps.Quizzes,
		teams:       deps.Teams,
		ranking:     deps.Ranking,
		ledger:      deps.Ledger,
		sequencer:   deps.Sequencer,
		verifier:    deps.Verifier,
		requireAuth: deps.Verifier != nil,
		logger:      deps.Logger.With("component", "api"),
	}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes", h.createQuiz)
	mux.HandleFunc("GET /api/quizzes", h.listQuizzes)
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /api/quizzes/{id}/questions/{questionId}/stats", h.questionStats)
	mux.HandleFunc("POST /api/quizzes/{id}/teams", h.createTeam)
	mux.HandleFunc("GET /api/quizzes/{id}/teams", h.listTeams)
	mux.HandleFunc("POST /api/quizzes/{id}/teams/{teamId}/members", h.addMember)
	mux.HandleFunc("DELETE /api/quizzes/{id}/teams/{teamId}/members/{userId}", h.removeMember)
	mux.HandleFunc("PUT /api/teachers/me", h.saveTeacher)
}

type optionRequest struct {
	Text    string `json:"text"`
	Label   string `json:"label"`
	Correct bool   `json:"isCorrect"`
}

type questionRequest struct {
	Text      string          `json:"text"`
	TimeLimit int             `json:"timeLimit"`
	Options   []optionRequest `json:"options"`
}

type createQuizRequest struct {
	TeacherID           string            `json:"teacherId"`
	Title               string            `json:"title"`
	Type                domain.QuizType   `json:"type"`
	DefaultQuestionTime int               `json:"defaultQuestionTime"`
	Questions           []questionRequest `json:"questions"`
}

func (r createQuizRequest) draft() domain.Quiz {
	quiz := domain.Quiz{
		Title:               r.Title,
		Type:                r.Type,
		DefaultQuestionTime: r.DefaultQuestionTime,
	}
	for _, q := range r.Questions {
		question := domain.Question{Text: q.Text, TimeLimit: q.TimeLimit}
		for _, o := range q.Options {
			question.Options = append(question.Options, domain.Option{Text: o.Text, Label: o.Label, Correct: o.Correct})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz
}

func (h *APIHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	teacherID, err := h.teacherID(r, req.TeacherID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), teacherID, req.draft())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.FindQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz.Public())
}

// listQuizzes resolves ?code= to one quiz, or lists a teacher's quizzes.
// With authentication on, the list is always the caller's own.
func (h *APIHandler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if code := query.Get("code"); code != "" {
		quiz, err := h.quizzes.FindByCode(r.Context(), code)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz.Public())
		return
	}

	teacherID, err := h.teacherID(r, query.Get("teacherId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if teacherID == "" {
		h.writeError(w, domain.Invalid("code or teacherId query parameter is required"))
		return
	}
	quizzes, err := h.quizzes.ListQuizzes(r.Context(), teacherID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]domain.PublicQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, q.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.ranking.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// questionStats exposes the answer key, so it is limited to the owning
// teacher when authentication is on and refused while the question is open.
func (h *APIHandler) questionStats(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	questionID := r.PathValue("questionId")
	if h.requireAuth {
		if err := h.authorizeOwner(r, quizID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if state := h.sequencer.State(quizID); state.Phase == app.PhaseOpen && state.QuestionID == questionID {
		h.writeError(w, domain.ErrQuestionOpen)
		return
	}
	stats, err := h.ledger.StatsForID(r.Context(), quizID, questionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type createTeamRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *APIHandler) createTeam(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	var req createTeamRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if h.requireAuth {
		if err := h.authorizeOwner(r, quizID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	team, err := h.teams.CreateTeam(r.Context(), quizID, req.Name, req.Members)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *APIHandler) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.teams.ListTeams(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (h *APIHandler) addMember(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	var req memberRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.authorizeMember(r, quizID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	team, err := h.teams.AddMember(r.Context(), quizID, r.PathValue("teamId"), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *APIHandler) removeMember(w http.ResponseWriter, r *http.Request) {
	quizID, userID := r.PathValue("id"), r.PathValue("userId")
	if err := h.authorizeMember(r, quizID, userID); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.teams.RemoveMember(r.Context(), quizID, r.PathValue("teamId"), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type teacherRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TelegramChatID string `json:"telegramChatId"`
}

func (h *APIHandler) saveTeacher(w http.ResponseWriter, r *http.Request) {
	var req teacherRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	teacherID, err := h.teacherID(r, req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	teacher, err := h.quizzes.SaveTeacher(r.Context(), domain.Teacher{
		ID:             teacherID,
		Name:           req.Name,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teacher)
}

// teacherID returns the token's teacher, or fallback when auth is off.
func (h *APIHandler) teacherID(r *http.Request, fallback string) (string, error) {
	if !h.requireAuth {
		return fallback, nil
	}
	identity, err := identify(r, h.verifier)
	if err != nil || identity.Anonymous() {
		return "", domain.ErrNotAuthenticated
	}
	if !identity.IsTeacher() {
		return "", domain.ErrForbidden
	}
	return identity.UserID, nil
}

func (h *APIHandler) authorizeOwner(r *http.Request, quizID string) error {
	teacherID, err := h.teacherID(r, "")
	if err != nil {
		return err
	}
	quiz, err := h.quizzes.FindQuiz(r.Context(), quizID)
	if err != nil {
		return err
	}
	if quiz.TeacherID != teacherID {
		return domain.ErrForbidden
	}
	return nil
}

// authorizeMember lets users manage their own membership and the owning
// teacher manage anyone's.
func (h *APIHandler) authorizeMember(r *http.Request, quizID, userID string) error {
	if !h.requireAuth {
		return nil
	}
	identity, err := identify(r, h.verifier)
	if err != nil || identity.Anonymous() {
		return domain.ErrNotAuthenticated
	}
	if identity.UserID == userID {
		return nil
	}
	return h.authorizeOwner(r, quizID)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message, Code: domain.CodeOf(err)})
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindForbidden:
		if errors.Is(err, domain.ErrNotAuthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
