package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"

	"github.com/google/uuid"
)

const maxCodeAttempts = 5

// QuizService contains the authoring and membership use cases around a quiz.
type QuizService struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewQuizService(store Store, clk clock.Clock, logger *slog.Logger) *QuizService {
	return &QuizService{store: store, clock: clk, logger: logger.With("component", "quizzes")}
}

// CreateQuiz validates an authored quiz, assigns ids and a join code, and
// stores it as DRAFT.
func (s *QuizService) CreateQuiz(ctx context.Context, teacherID string, draft domain.Quiz) (domain.Quiz, error) {
	if teacherID == "" {
		return domain.Quiz{}, domain.Invalid("teacherId is required")
	}

	draft.ID = uuid.NewString()
	for i := range draft.Questions {
		draft.Questions[i].ID = uuid.NewString()
		for j := range draft.Questions[i].Options {
			draft.Questions[i].Options[j].ID = uuid.NewString()
		}
	}
	quiz, err := domain.NormalizeQuiz(draft)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.TeacherID = teacherID
	quiz.Status = domain.QuizStatusDraft
	quiz.CreatedAt = s.clock.Now()
	quiz.StartedAt = nil
	quiz.CompletedAt = nil

	for attempt := 1; ; attempt++ {
		code, err := domain.NewJoinCode()
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.Code = code
		err = s.store.CreateQuiz(ctx, quiz)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrCodeTaken) || attempt == maxCodeAttempts {
			return domain.Quiz{}, err
		}
		s.logger.Debug("join code collision", "attempt", attempt)
	}

	s.logger.Info("quiz created", "quiz_id", quiz.ID, "teacher_id", teacherID, "questions", len(quiz.Questions))
	return quiz, nil
}

// FindQuiz loads a quiz with its questions.
func (s *QuizService) FindQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// FindByCode resolves a join code.
func (s *QuizService) FindByCode(ctx context.Context, code string) (domain.Quiz, error) {
	if !domain.IsJoinCode(code) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.store.GetQuizByCode(ctx, code)
}

// ListQuizzes returns the quizzes a teacher authored, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context, teacherID string) ([]domain.Quiz, error) {
	if teacherID == "" {
		return nil, domain.Invalid("teacherId is required")
	}
	return s.store.ListQuizzes(ctx, teacherID)
}

// Join adds the user to the quiz. Joining again returns the existing
// participant with created=false. In a TEAM quiz a team id must name one of
// the quiz's teams, and a team with a roster only admits its members.
func (s *QuizService) Join(ctx context.Context, quiz domain.Quiz, userID, displayName, teamID string) (domain.Participant, bool, error) {
	if quiz.Status == domain.QuizStatusCompleted {
		return domain.Participant{}, false, domain.ErrAlreadyCompleted
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = userID
	}
	if quiz.Type != domain.QuizTypeTeam {
		teamID = ""
	}
	if teamID != "" {
		if err := s.checkTeam(ctx, quiz.ID, teamID, userID); err != nil {
			return domain.Participant{}, false, err
		}
	}

	participant, created, err := s.store.AddParticipant(ctx, domain.Participant{
		ID:          uuid.NewString(),
		QuizID:      quiz.ID,
		UserID:      userID,
		DisplayName: displayName,
		TeamID:      teamID,
		JoinedAt:    s.clock.Now(),
	})
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("add participant: %w", err)
	}
	if created {
		s.logger.Debug("participant joined", "quiz_id", quiz.ID, "user_id", userID)
	}
	return participant, created, nil
}

func (s *QuizService) checkTeam(ctx context.Context, quizID, teamID, userID string) error {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.QuizID != quizID {
		return domain.ErrTeamNotFound
	}
	if len(team.Members) > 0 && !team.HasMember(userID) {
		return domain.ErrNotTeamMember
	}
	return nil
}

// SaveTeacher creates or updates a teacher profile.
func (s *QuizService) SaveTeacher(ctx context.Context, teacher domain.Teacher) (domain.Teacher, error) {
	teacher.Name = strings.TrimSpace(teacher.Name)
	teacher.TelegramChatID = strings.TrimSpace(teacher.TelegramChatID)
	if teacher.ID == "" {
		return domain.Teacher{}, domain.Invalid("teacher id is required")
	}
	if teacher.Name == "" {
		return domain.Teacher{}, domain.Invalid("name is required")
	}
	if err := s.store.SaveTeacher(ctx, teacher); err != nil {
		return domain.Teacher{}, err
	}
	return teacher, nil
}
