package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements app.Store on Postgres. Answer recording and the score
// increment run in one transaction; uniqueness is enforced by constraints.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO quizzes (id, title, code, teacher_id, type, status, default_question_time, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			quiz.ID, quiz.Title, quiz.Code, quiz.TeacherID, string(quiz.Type), string(quiz.Status),
			quiz.DefaultQuestionTime, quiz.CreatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, q := range quiz.Questions {
			batch.Queue(`INSERT INTO questions (id, quiz_id, text, position, time_limit) VALUES ($1, $2, $3, $4, $5)`,
				q.ID, quiz.ID, q.Text, q.Order, q.TimeLimit)
			for i, opt := range q.Options {
				batch.Queue(`INSERT INTO options (id, quiz_id, question_id, label, text, is_correct, position) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					opt.ID, quiz.ID, q.ID, opt.Label, opt.Text, opt.Correct, i+1)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if isUniqueViolation(err, "quizzes_live_code_idx") {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

const quizColumns = `id, title, code, teacher_id, type, status, default_question_time, created_at, started_at, completed_at`

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz        domain.Quiz
		quizType    string
		status      string
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(&quiz.ID, &quiz.Title, &quiz.Code, &quiz.TeacherID, &quizType, &status,
		&quiz.DefaultQuestionTime, &quiz.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("scan quiz: %w", err)
	}
	quiz.Type = domain.QuizType(quizType)
	quiz.Status = domain.QuizStatus(status)
	quiz.StartedAt = startedAt
	quiz.CompletedAt = completedAt
	return quiz, nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, quizID))
	if err != nil {
		return domain.Quiz{}, err
	}
	return s.withQuestions(ctx, quiz)
}

func (s *Store) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, `
		SELECT `+quizColumns+` FROM quizzes
		WHERE code = $1
		ORDER BY (status = 'COMPLETED'), created_at DESC
		LIMIT 1`, code))
	if err != nil {
		return domain.Quiz{}, err
	}
	return s.withQuestions(ctx, quiz)
}

func (s *Store) ListQuizzes(ctx context.Context, teacherID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+quizColumns+` FROM quizzes
		WHERE teacher_id = $1
		ORDER BY created_at DESC, id`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	var quizzes []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	out := make([]domain.Quiz, 0, len(quizzes))
	for _, quiz := range quizzes {
		full, err := s.withQuestions(ctx, quiz)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, nil
}

func (s *Store) withQuestions(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, position, time_limit FROM questions
		WHERE quiz_id = $1 ORDER BY position`, quiz.ID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		q := domain.Question{QuizID: quiz.ID}
		if err := rows.Scan(&q.ID, &q.Text, &q.Order, &q.TimeLimit); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	options, err := s.ListOptions(ctx, quiz.ID)
	if err != nil {
		return domain.Quiz{}, err
	}
	for _, opt := range options {
		if i, ok := index[opt.QuestionID]; ok {
			quiz.Questions[i].Options = append(quiz.Questions[i].Options, opt)
		}
	}
	return quiz, nil
}

func (s *Store) TransitionQuiz(ctx context.Context, quizID string, from, to domain.QuizStatus, at time.Time) (domain.Quiz, error) {
	column := "started_at"
	if to == domain.QuizStatusCompleted {
		column = "completed_at"
	}
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, `
		UPDATE quizzes SET status = $3, `+column+` = $4
		WHERE id = $1 AND status = $2
		RETURNING `+quizColumns, quizID, string(from), string(to), at))
	if errors.Is(err, domain.ErrQuizNotFound) {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)`, quizID).Scan(&exists); err != nil {
			return domain.Quiz{}, fmt.Errorf("check quiz: %w", err)
		}
		if exists {
			return domain.Quiz{}, domain.ErrStatusConflict
		}
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *Store) SaveTeacher(ctx context.Context, teacher domain.Teacher) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teachers (id, name, telegram_chat_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, telegram_chat_id = EXCLUDED.telegram_chat_id`,
		teacher.ID, teacher.Name, teacher.TelegramChatID)
	if err != nil {
		return fmt.Errorf("save teacher: %w", err)
	}
	return nil
}

func (s *Store) GetTeacher(ctx context.Context, teacherID string) (domain.Teacher, error) {
	var teacher domain.Teacher
	err := s.pool.QueryRow(ctx, `SELECT id, name, telegram_chat_id FROM teachers WHERE id = $1`, teacherID).
		Scan(&teacher.ID, &teacher.Name, &teacher.TelegramChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Teacher{}, domain.ErrTeacherNotFound
	}
	if err != nil {
		return domain.Teacher{}, fmt.Errorf("get teacher: %w", err)
	}
	return teacher, nil
}

const participantColumns = `id, quiz_id, user_id, display_name, team_id, score, joined_at`

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.QuizID, &p.UserID, &p.DisplayName, &p.TeamID, &p.Score, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	return p, nil
}

func (s *Store) AddParticipant(ctx context.Context, participant domain.Participant) (domain.Participant, bool, error) {
	created, err := scanParticipant(s.pool.QueryRow(ctx, `
		INSERT INTO participants (id, quiz_id, user_id, display_name, team_id, score, joined_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		ON CONFLICT (quiz_id, user_id) DO NOTHING
		RETURNING `+participantColumns,
		participant.ID, participant.QuizID, participant.UserID, participant.DisplayName, participant.TeamID, participant.JoinedAt))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, false, err
	}
	existing, err := s.GetParticipant(ctx, participant.QuizID, participant.UserID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return existing, false, nil
}

func (s *Store) GetParticipant(ctx context.Context, quizID, userID string) (domain.Participant, error) {
	return scanParticipant(s.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE quiz_id = $1 AND user_id = $2`, quizID, userID))
}

func (s *Store) ListParticipants(ctx context.Context, quizID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE quiz_id = $1 ORDER BY join_seq`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListOptions(ctx context.Context, quizID string) ([]domain.Option, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.question_id, o.label, o.text, o.is_correct
		FROM options o JOIN questions q ON q.id = o.question_id
		WHERE o.quiz_id = $1
		ORDER BY q.position, o.position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var out []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.QuestionID, &opt.Label, &opt.Text, &opt.Correct); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}

func (s *Store) GetOption(ctx context.Context, optionID string) (domain.Option, error) {
	var opt domain.Option
	err := s.pool.QueryRow(ctx, `SELECT id, question_id, label, text, is_correct FROM options WHERE id = $1`, optionID).
		Scan(&opt.ID, &opt.QuestionID, &opt.Label, &opt.Text, &opt.Correct)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Option{}, domain.ErrUnknownOption
	}
	if err != nil {
		return domain.Option{}, fmt.Errorf("get option: %w", err)
	}
	return opt, nil
}

func (s *Store) CreateTeam(ctx context.Context, team domain.Team) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO teams (id, quiz_id, name, created_at) VALUES ($1, $2, $3, $4)`,
			team.ID, team.QuizID, team.Name, team.CreatedAt); err != nil {
			return err
		}
		for _, userID := range team.Members {
			if _, err := tx.Exec(ctx, `INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)`, team.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err, "teams_quiz_name_key") {
		return domain.ErrTeamNameTaken
	}
	if isForeignKeyViolation(err) {
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, teamID string) (domain.Team, error) {
	var team domain.Team
	err := s.pool.QueryRow(ctx, `SELECT id, quiz_id, name, created_at FROM teams WHERE id = $1`, teamID).
		Scan(&team.ID, &team.QuizID, &team.Name, &team.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	members, err := s.teamMembers(ctx, `WHERE team_id = $1`, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	team.Members = members[team.ID]
	if team.Members == nil {
		team.Members = []string{}
	}
	return team, nil
}

func (s *Store) ListTeams(ctx context.Context, quizID string) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, quiz_id, name, created_at FROM teams WHERE quiz_id = $1 ORDER BY seq`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	var teams []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.QuizID, &team.Name, &team.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	members, err := s.teamMembers(ctx, `WHERE team_id IN (SELECT id FROM teams WHERE quiz_id = $1)`, quizID)
	if err != nil {
		return nil, err
	}
	for i := range teams {
		teams[i].Members = members[teams[i].ID]
		if teams[i].Members == nil {
			teams[i].Members = []string{}
		}
	}
	return teams, nil
}

// teamMembers groups member user ids by team for the rows matching where.
func (s *Store) teamMembers(ctx context.Context, where string, arg string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT team_id, user_id FROM team_members `+where+` ORDER BY member_seq`, arg)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var teamID, userID string
		if err := rows.Scan(&teamID, &userID); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		out[teamID] = append(out[teamID], userID)
	}
	return out, rows.Err()
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)`, teamID, userID)
	if isUniqueViolation(err, "") {
		return domain.ErrAlreadyMember
	}
	if isForeignKeyViolation(err) {
		return domain.ErrTeamNotFound
	}
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("remove team member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTeam(ctx, teamID); err != nil {
			return err
		}
		return domain.ErrTeamMemberNotFound
	}
	return nil
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.Answer) (int, error) {
	var score int
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO answers (id, quiz_id, question_id, participant_id, user_id, option_id, is_correct, time_spent_ms, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			answer.ID, answer.QuizID, answer.QuestionID, answer.ParticipantID, answer.UserID,
			answer.OptionID, answer.Correct, answer.TimeSpentMs, answer.SubmittedAt)
		if err != nil {
			return err
		}
		if answer.Correct {
			return tx.QueryRow(ctx, `UPDATE participants SET score = score + 1 WHERE id = $1 RETURNING score`,
				answer.ParticipantID).Scan(&score)
		}
		return tx.QueryRow(ctx, `SELECT score FROM participants WHERE id = $1`, answer.ParticipantID).Scan(&score)
	})
	if isUniqueViolation(err, "") {
		return 0, domain.ErrDuplicateAnswer
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrParticipantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record answer: %w", err)
	}
	return score, nil
}

func (s *Store) ListAnswers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, question_id, participant_id, user_id, option_id, is_correct, time_spent_ms, submitted_at
		FROM answers WHERE question_id = $1 ORDER BY submitted_at, id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.QuizID, &a.QuestionID, &a.ParticipantID, &a.UserID,
			&a.OptionID, &a.Correct, &a.TimeSpentMs, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// isUniqueViolation reports a 23505 error, optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
