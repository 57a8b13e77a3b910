package app

import (
	"context"
	"log/slog"
	"strings"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"

	"github.com/google/uuid"
)

// TeamService manages the teams of TEAM quizzes and their rosters.
type TeamService struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewTeamService(store Store, clk clock.Clock, logger *slog.Logger) *TeamService {
	return &TeamService{store: store, clock: clk, logger: logger.With("component", "teams")}
}

// CreateTeam adds a named team to a TEAM quiz that has not completed yet.
func (s *TeamService) CreateTeam(ctx context.Context, quizID, name string, members []string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, domain.Invalid("team name is required")
	}
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Team{}, err
	}
	if quiz.Type != domain.QuizTypeTeam {
		return domain.Team{}, domain.ErrNotTeamQuiz
	}
	if quiz.Status == domain.QuizStatusCompleted {
		return domain.Team{}, domain.ErrAlreadyCompleted
	}

	roster := make([]string, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		roster = append(roster, m)
	}

	team := domain.Team{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		Name:      name,
		Members:   roster,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return domain.Team{}, err
	}
	s.logger.Info("team created", "quiz_id", quizID, "team_id", team.ID, "members", len(roster))
	return team, nil
}

// ListTeams returns the teams of a quiz.
func (s *TeamService) ListTeams(ctx context.Context, quizID string) ([]domain.Team, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, quizID)
}

// Team loads a team and checks that it belongs to quizID.
func (s *TeamService) Team(ctx context.Context, quizID, teamID string) (domain.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	if team.QuizID != quizID {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return team, nil
}

// AddMember puts userID on the team's roster.
func (s *TeamService) AddMember(ctx context.Context, quizID, teamID, userID string) (domain.Team, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Team{}, domain.Invalid("userId is required")
	}
	if _, err := s.Team(ctx, quizID, teamID); err != nil {
		return domain.Team{}, err
	}
	if err := s.store.AddTeamMember(ctx, teamID, userID); err != nil {
		return domain.Team{}, err
	}
	return s.store.GetTeam(ctx, teamID)
}

// RemoveMember takes userID off the team's roster. Scores already earned
// under the team stay with the participant.
func (s *TeamService) RemoveMember(ctx context.Context, quizID, teamID, userID string) error {
	if _, err := s.Team(ctx, quizID, teamID); err != nil {
		return err
	}
	return s.store.RemoveTeamMember(ctx, teamID, userID)
}
