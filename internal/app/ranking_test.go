package app_test

import (
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOrdersByScoreThenJoinOrder(t *testing.T) {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Arithmetic", Type: domain.QuizTypeIndividual}
	base := testStart
	participants := []domain.Participant{
		{ID: "p-late", UserID: "late", Score: 2, JoinedAt: base.Add(3 * time.Second)},
		{ID: "p-early", UserID: "early", Score: 2, JoinedAt: base.Add(time.Second)},
		{ID: "p-top", UserID: "top", Score: 5, JoinedAt: base.Add(5 * time.Second)},
		{ID: "p-zero", UserID: "zero", Score: 0, JoinedAt: base},
	}

	lb := app.Rank(quiz, participants)
	require.Len(t, lb.Participants, 4)
	var order []string
	for i, e := range lb.Participants {
		order = append(order, e.UserID)
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"top", "early", "late", "zero"}, order)
	assert.Equal(t, "Arithmetic", lb.QuizTitle)
	assert.Nil(t, lb.Teams)

	assert.Equal(t, lb, app.Rank(quiz, participants), "ranking must be deterministic")
	assert.Equal(t, "p-late", participants[0].ID, "input must not be reordered")
}

func TestRankBreaksFullTiesByParticipantID(t *testing.T) {
	quiz := domain.Quiz{ID: "quiz-1"}
	participants := []domain.Participant{
		{ID: "b", Score: 1, JoinedAt: testStart},
		{ID: "a", Score: 1, JoinedAt: testStart},
	}
	lb := app.Rank(quiz, participants)
	assert.Equal(t, "a", lb.Participants[0].ParticipantID)
}

func TestRankTeamStandings(t *testing.T) {
	quiz := domain.Quiz{ID: "quiz-1", Type: domain.QuizTypeTeam}
	participants := []domain.Participant{
		{ID: "p1", TeamID: "red", Score: 2, JoinedAt: testStart.Add(2 * time.Second)},
		{ID: "p2", TeamID: "blue", Score: 1, JoinedAt: testStart},
		{ID: "p3", TeamID: "blue", Score: 1, JoinedAt: testStart.Add(3 * time.Second)},
		{ID: "p4", TeamID: "green", Score: 0, JoinedAt: testStart.Add(time.Second)},
		{ID: "p5", Score: 4, JoinedAt: testStart},
	}

	lb := app.Rank(quiz, participants)
	require.Len(t, lb.Teams, 3)
	assert.Equal(t, domain.TeamStanding{Rank: 1, TeamID: "blue", Score: 2, Members: 2}, lb.Teams[0])
	assert.Equal(t, domain.TeamStanding{Rank: 2, TeamID: "red", Score: 2, Members: 1}, lb.Teams[1])
	assert.Equal(t, "green", lb.Teams[2].TeamID)
}

func TestLeaderboardReadsCurrentScores(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	h.join(t, "quiz-1", "alice")
	h.join(t, "quiz-1", "bob")

	lb, err := h.ranking.Leaderboard(h.ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", lb.Participants[0].UserID)

	_, _, err = h.ledger.Submit(h.ctx, domain.AnswerSubmission{QuizID: "quiz-1", QuestionID: "q1", UserID: "bob", OptionID: "o2"})
	require.NoError(t, err)

	lb, err = h.ranking.Leaderboard(h.ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", lb.Participants[0].UserID)
	assert.Equal(t, 1, lb.Participants[0].Score)

	_, err = h.ranking.Leaderboard(h.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}
