package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type stack struct {
	clock     *clock.Fake
	store     *memory.Store
	sequencer *app.Sequencer
	verifier  *auth.Verifier
	server    *httptest.Server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStack(t *testing.T, withAuth bool) *stack {
	t.Helper()
	logger := discardLogger()
	clk := clock.NewFake(testStart)
	store := memory.NewStore()
	registry := app.NewRegistry(logger)
	ledger := app.NewAnswerLedger(store, memory.NewOptionCache(store, time.Minute), memory.NewAnswerGuard(), clk, logger)
	ranking := app.NewRankingEngine(store)
	sequencer := app.NewSequencer(app.SequencerDeps{
		Store:       store,
		Sessions:    memory.NewSessionStore(),
		Ledger:      ledger,
		Ranking:     ranking,
		Broadcaster: registry,
		Clock:       clk,
		Logger:      logger,
	}, app.SequencerConfig{})
	quizzes := app.NewQuizService(store, clk, logger)

	s := &stack{clock: clk, store: store, sequencer: sequencer}
	var verifier TokenVerifier
	if withAuth {
		s.verifier = auth.NewVerifier("test-secret")
		verifier = s.verifier
	}
	gateway := app.NewGateway(app.GatewayDeps{
		Quizzes:     quizzes,
		Sequencer:   sequencer,
		Ranking:     ranking,
		Registry:    registry,
		Clock:       clk,
		Logger:      logger,
		RequireAuth: withAuth,
	})
	router := NewRouter(
		NewAPIHandler(APIDeps{
			Quizzes:   quizzes,
			Teams:     app.NewTeamService(store, clk, logger),
			Ranking:   ranking,
			Ledger:    ledger,
			Sequencer: sequencer,
			Verifier:  verifier,
			Logger:    logger,
		}),
		NewWSHandler(gateway, verifier, logger),
	)
	s.server = httptest.NewServer(router)
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) seed(t *testing.T) {
	t.Helper()
	quiz := domain.Quiz{
		ID:                  "quiz-1",
		Title:               "Arithmetic",
		Code:                "123456",
		TeacherID:           "teacher-1",
		Type:                domain.QuizTypeIndividual,
		Status:              domain.QuizStatusDraft,
		DefaultQuestionTime: 30,
		CreatedAt:           testStart,
		Questions: []domain.Question{{
			ID: "q1", QuizID: "quiz-1", Text: "2 + 2?", Order: 1, TimeLimit: 5,
			Options: []domain.Option{
				{ID: "o1", QuestionID: "q1", Label: "A", Text: "3"},
				{ID: "o2", QuestionID: "q1", Label: "B", Text: "4", Correct: true},
			},
		}},
	}
	require.NoError(t, s.store.CreateQuiz(context.Background(), quiz))
}

func (s *stack) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, err := s.verifier.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *stack) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type wireReply struct {
	RequestType string          `json:"requestType"`
	Success     bool            `json:"success"`
	Error       string          `json:"error"`
	Code        string          `json:"code"`
	Data        json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, requestType, requestID, payload string) {
	t.Helper()
	msg := map[string]any{"type": requestType, "requestId": requestID, "payload": json.RawMessage(payload)}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, messageType string) wireMessage {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == messageType {
			return msg
		}
	}
}

func readReply(t *testing.T, conn *websocket.Conn, requestID string) wireReply {
	t.Helper()
	msg := readUntil(t, conn, "reply")
	require.Equal(t, requestID, msg.RequestID)
	var reply wireReply
	require.NoError(t, json.Unmarshal(msg.Payload, &reply))
	return reply
}

func (s *stack) request(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}
