package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"classroom-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store used for demos and
// tests. One mutex covers all tables, which makes answer recording and the
// score increment a single atomic step.
type Store struct {
	mu           sync.RWMutex
	quizzes      map[string]domain.Quiz
	teachers     map[string]domain.Teacher
	participants map[string]map[string]*storedParticipant // quiz id -> user id
	answers      map[string]map[string]domain.Answer      // question id -> user id
	answerOrder  map[string][]string                      // question id -> user ids
	teams        map[string]*storedTeam
	joinSeq      int64
	teamSeq      int64
}

type storedTeam struct {
	domain.Team
	seq int64
}

type storedParticipant struct {
	domain.Participant
	seq int64
}

func NewStore() *Store {
	return &Store{
		quizzes:      make(map[string]domain.Quiz),
		teachers:     make(map[string]domain.Teacher),
		participants: make(map[string]map[string]*storedParticipant),
		answers:      make(map[string]map[string]domain.Answer),
		answerOrder:  make(map[string][]string),
		teams:        make(map[string]*storedTeam),
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.quizzes[quiz.ID]; exists {
		return domain.Invalid("quiz id already exists")
	}
	for _, other := range s.quizzes {
		if other.Code == quiz.Code && other.Status != domain.QuizStatusCompleted {
			return domain.ErrCodeTaken
		}
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) GetQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.Code != code {
			continue
		}
		q := quiz
		if q.Status != domain.QuizStatusCompleted {
			return cloneQuiz(q), nil
		}
		if found == nil || q.CreatedAt.After(found.CreatedAt) {
			found = &q
		}
	}
	if found == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(*found), nil
}

func (s *Store) ListQuizzes(_ context.Context, teacherID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if quiz.TeacherID == teacherID {
			out = append(out, cloneQuiz(quiz))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) TransitionQuiz(_ context.Context, quizID string, from, to domain.QuizStatus, at time.Time) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if quiz.Status != from {
		return domain.Quiz{}, domain.ErrStatusConflict
	}
	quiz.Status = to
	stamp := at
	switch to {
	case domain.QuizStatusActive:
		quiz.StartedAt = &stamp
	case domain.QuizStatusCompleted:
		quiz.CompletedAt = &stamp
	}
	s.quizzes[quizID] = quiz
	return cloneQuiz(quiz), nil
}

func (s *Store) SaveTeacher(_ context.Context, teacher domain.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teachers[teacher.ID] = teacher
	return nil
}

func (s *Store) GetTeacher(_ context.Context, teacherID string) (domain.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teacher, ok := s.teachers[teacherID]
	if !ok {
		return domain.Teacher{}, domain.ErrTeacherNotFound
	}
	return teacher, nil
}

func (s *Store) AddParticipant(_ context.Context, participant domain.Participant) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[participant.QuizID]; !ok {
		return domain.Participant{}, false, domain.ErrQuizNotFound
	}
	byUser, ok := s.participants[participant.QuizID]
	if !ok {
		byUser = make(map[string]*storedParticipant)
		s.participants[participant.QuizID] = byUser
	}
	if existing, ok := byUser[participant.UserID]; ok {
		return existing.Participant, false, nil
	}
	s.joinSeq++
	participant.Score = 0
	byUser[participant.UserID] = &storedParticipant{Participant: participant, seq: s.joinSeq}
	return participant, true, nil
}

func (s *Store) GetParticipant(_ context.Context, quizID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[quizID][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p.Participant, nil
}

func (s *Store) ListParticipants(_ context.Context, quizID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := make([]*storedParticipant, 0, len(s.participants[quizID]))
	for _, p := range s.participants[quizID] {
		stored = append(stored, p)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	out := make([]domain.Participant, 0, len(stored))
	for _, p := range stored {
		out = append(out, p.Participant)
	}
	return out, nil
}

func (s *Store) ListOptions(_ context.Context, quizID string) ([]domain.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	var options []domain.Option
	for _, q := range quiz.Questions {
		options = append(options, q.Options...)
	}
	return options, nil
}

func (s *Store) GetOption(_ context.Context, optionID string) (domain.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, quiz := range s.quizzes {
		for _, q := range quiz.Questions {
			for _, opt := range q.Options {
				if opt.ID == optionID {
					return opt, nil
				}
			}
		}
	}
	return domain.Option{}, domain.ErrUnknownOption
}

func (s *Store) CreateTeam(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[team.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	for _, other := range s.teams {
		if other.QuizID == team.QuizID && other.Name == team.Name {
			return domain.ErrTeamNameTaken
		}
	}
	s.teamSeq++
	team.Members = append([]string(nil), team.Members...)
	s.teams[team.ID] = &storedTeam{Team: team, seq: s.teamSeq}
	return nil
}

func (s *Store) GetTeam(_ context.Context, teamID string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return cloneTeam(t.Team), nil
}

func (s *Store) ListTeams(_ context.Context, quizID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored []*storedTeam
	for _, t := range s.teams {
		if t.QuizID == quizID {
			stored = append(stored, t)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	out := make([]domain.Team, 0, len(stored))
	for _, t := range stored {
		out = append(out, cloneTeam(t.Team))
	}
	return out, nil
}

func (s *Store) AddTeamMember(_ context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.ErrTeamNotFound
	}
	if t.HasMember(userID) {
		return domain.ErrAlreadyMember
	}
	t.Members = append(t.Members, userID)
	return nil
}

func (s *Store) RemoveTeamMember(_ context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.ErrTeamNotFound
	}
	for i, m := range t.Members {
		if m == userID {
			t.Members = append(t.Members[:i:i], t.Members[i+1:]...)
			return nil
		}
	}
	return domain.ErrTeamMemberNotFound
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.answers[answer.QuestionID]
	if !ok {
		byUser = make(map[string]domain.Answer)
		s.answers[answer.QuestionID] = byUser
	}
	if _, dup := byUser[answer.UserID]; dup {
		return 0, domain.ErrDuplicateAnswer
	}
	p, ok := s.participants[answer.QuizID][answer.UserID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}

	byUser[answer.UserID] = answer
	s.answerOrder[answer.QuestionID] = append(s.answerOrder[answer.QuestionID], answer.UserID)
	if answer.Correct {
		p.Score++
	}
	return p.Score, nil
}

func (s *Store) ListAnswers(_ context.Context, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.answerOrder[questionID]
	out := make([]domain.Answer, 0, len(order))
	for _, userID := range order {
		out = append(out, s.answers[questionID][userID])
	}
	return out, nil
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		questions[i] = q
	}
	quiz.Questions = questions
	return quiz
}

func cloneTeam(team domain.Team) domain.Team {
	team.Members = append([]string{}, team.Members...)
	return team
}
