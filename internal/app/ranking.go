package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"classroom-quiz-service/internal/domain"
)

// RankingEngine derives leaderboards from current participant scores. It
// never caches.
type RankingEngine struct {
	store Store
}

func NewRankingEngine(store Store) *RankingEngine {
	return &RankingEngine{store: store}
}

// Leaderboard loads the quiz and ranks its participants.
func (r *RankingEngine) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	quiz, err := r.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return r.LeaderboardFor(ctx, quiz)
}

// LeaderboardFor ranks the participants of an already loaded quiz.
func (r *RankingEngine) LeaderboardFor(ctx context.Context, quiz domain.Quiz) (domain.Leaderboard, error) {
	participants, err := r.store.ListParticipants(ctx, quiz.ID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list participants: %w", err)
	}
	lb := Rank(quiz, participants)
	if len(lb.Teams) > 0 {
		teams, err := r.store.ListTeams(ctx, quiz.ID)
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("list teams: %w", err)
		}
		names := make(map[string]string, len(teams))
		for _, t := range teams {
			names[t.ID] = t.Name
		}
		for i := range lb.Teams {
			lb.Teams[i].Name = names[lb.Teams[i].TeamID]
		}
	}
	return lb, nil
}

// Rank orders participants by score descending; equal scores keep join
// order (earlier first), then participant id. The input is not modified.
func Rank(quiz domain.Quiz, participants []domain.Participant) domain.Leaderboard {
	ordered := make([]domain.Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			TeamID:        p.TeamID,
			Score:         p.Score,
		})
	}

	lb := domain.Leaderboard{
		QuizID:       quiz.ID,
		QuizTitle:    quiz.Title,
		Participants: entries,
	}
	if quiz.Type == domain.QuizTypeTeam {
		lb.Teams = rankTeams(ordered)
	}
	return lb
}

func rankTeams(participants []domain.Participant) []domain.TeamStanding {
	type team struct {
		standing    domain.TeamStanding
		firstJoined time.Time
	}
	byID := make(map[string]*team)
	for _, p := range participants {
		if p.TeamID == "" {
			continue
		}
		t, ok := byID[p.TeamID]
		if !ok {
			t = &team{standing: domain.TeamStanding{TeamID: p.TeamID}, firstJoined: p.JoinedAt}
			byID[p.TeamID] = t
		}
		t.standing.Score += p.Score
		t.standing.Members++
		if p.JoinedAt.Before(t.firstJoined) {
			t.firstJoined = p.JoinedAt
		}
	}

	teams := make([]*team, 0, len(byID))
	for _, t := range byID {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		if a.standing.Score != b.standing.Score {
			return a.standing.Score > b.standing.Score
		}
		if !a.firstJoined.Equal(b.firstJoined) {
			return a.firstJoined.Before(b.firstJoined)
		}
		return a.standing.TeamID < b.standing.TeamID
	})

	standings := make([]domain.TeamStanding, 0, len(teams))
	for i, t := range teams {
		t.standing.Rank = i + 1
		standings = append(standings, t.standing)
	}
	return standings
}
