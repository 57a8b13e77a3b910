package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/domain"
)

func TestStoreTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	quiz, err := store.TransitionQuiz(ctx, "quiz-1", domain.QuizStatusDraft, domain.QuizStatusActive, at)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if quiz.Status != domain.QuizStatusActive || quiz.StartedAt == nil || !quiz.StartedAt.Equal(at) {
		t.Fatalf("unexpected quiz after start: %+v", quiz)
	}
	if _, err := store.TransitionQuiz(ctx, "quiz-1", domain.QuizStatusDraft, domain.QuizStatusActive, at); !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}
	if _, err := store.TransitionQuiz(ctx, "missing", domain.QuizStatusDraft, domain.QuizStatusActive, at); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreCodeUniqueWhileLive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())

	other := sampleQuiz()
	other.ID = "quiz-2"
	if err := store.CreateQuiz(ctx, other); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	now := time.Now()
	_, _ = store.TransitionQuiz(ctx, "quiz-1", domain.QuizStatusDraft, domain.QuizStatusActive, now)
	_, _ = store.TransitionQuiz(ctx, "quiz-1", domain.QuizStatusActive, domain.QuizStatusCompleted, now)
	if err := store.CreateQuiz(ctx, other); err != nil {
		t.Fatalf("code should be reusable after completion: %v", err)
	}
	got, err := store.GetQuizByCode(ctx, "123456")
	if err != nil || got.ID != "quiz-2" {
		t.Fatalf("expected live quiz-2 by code, got %+v err %v", got, err)
	}
}

func TestStoreAddParticipantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())

	first, created, err := store.AddParticipant(ctx, domain.Participant{ID: "p1", QuizID: "quiz-1", UserID: "u1", DisplayName: "Alice"})
	if err != nil || !created {
		t.Fatalf("first join: created=%v err=%v", created, err)
	}
	again, created, err := store.AddParticipant(ctx, domain.Participant{ID: "p2", QuizID: "quiz-1", UserID: "u1", DisplayName: "Alice again"})
	if err != nil || created {
		t.Fatalf("second join: created=%v err=%v", created, err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected existing participant, got %+v", again)
	}
}

func TestStoreRecordAnswerConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())
	_, _, _ = store.AddParticipant(ctx, domain.Participant{ID: "p1", QuizID: "quiz-1", UserID: "u1"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, duplicates := 0, 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordAnswer(ctx, domain.Answer{QuizID: "quiz-1", QuestionID: "q1", UserID: "u1", OptionID: "o2", Correct: true})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrDuplicateAnswer):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || duplicates != 31 {
		t.Fatalf("expected 1 success and 31 duplicates, got %d/%d", successes, duplicates)
	}
	p, _ := store.GetParticipant(ctx, "quiz-1", "u1")
	if p.Score != 1 {
		t.Fatalf("expected score 1, got %d", p.Score)
	}
	answers, _ := store.ListAnswers(ctx, "q1")
	if len(answers) != 1 {
		t.Fatalf("expected one stored answer, got %d", len(answers))
	}
}

func TestStoreListParticipantsJoinOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())
	for _, user := range []string{"u3", "u1", "u2"} {
		_, _, _ = store.AddParticipant(ctx, domain.Participant{ID: "p-" + user, QuizID: "quiz-1", UserID: user})
	}
	list, _ := store.ListParticipants(ctx, "quiz-1")
	if len(list) != 3 || list[0].UserID != "u3" || list[1].UserID != "u1" || list[2].UserID != "u2" {
		t.Fatalf("expected join order u3,u1,u2, got %+v", list)
	}
}

func TestStoreGetOptionAcrossQuizzes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())

	opt, err := store.GetOption(ctx, "o3")
	if err != nil || opt.QuestionID != "q2" {
		t.Fatalf("unexpected option %+v err=%v", opt, err)
	}
	if _, err := store.GetOption(ctx, "missing"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected unknown option, got %v", err)
	}
}

func TestStoreListQuizzesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"quiz-1", "quiz-2", "quiz-3"} {
		quiz := sampleQuiz()
		quiz.ID = id
		quiz.Code = "10000" + string(rune('1'+i))
		quiz.TeacherID = "teacher-1"
		quiz.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if id == "quiz-3" {
			quiz.TeacherID = "teacher-2"
		}
		if err := store.CreateQuiz(ctx, quiz); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	quizzes, err := store.ListQuizzes(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(quizzes) != 2 || quizzes[0].ID != "quiz-2" || quizzes[1].ID != "quiz-1" {
		t.Fatalf("unexpected quizzes %+v", quizzes)
	}
	if len(quizzes[0].Questions) != 2 {
		t.Fatalf("expected questions loaded, got %d", len(quizzes[0].Questions))
	}
}

func TestStoreTeamsAndRoster(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateQuiz(ctx, sampleQuiz())

	if err := store.CreateTeam(ctx, domain.Team{ID: "t1", QuizID: "missing", Name: "Red"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if err := store.CreateTeam(ctx, domain.Team{ID: "t1", QuizID: "quiz-1", Name: "Red", Members: []string{"alice"}}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	if err := store.CreateTeam(ctx, domain.Team{ID: "t2", QuizID: "quiz-1", Name: "Red"}); !errors.Is(err, domain.ErrTeamNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}
	if err := store.CreateTeam(ctx, domain.Team{ID: "t2", QuizID: "quiz-1", Name: "Blue"}); err != nil {
		t.Fatalf("create second team: %v", err)
	}

	if err := store.AddTeamMember(ctx, "t1", "bob"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := store.AddTeamMember(ctx, "t1", "bob"); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("expected already member, got %v", err)
	}
	if err := store.AddTeamMember(ctx, "missing", "bob"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}
	if err := store.RemoveTeamMember(ctx, "t1", "alice"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := store.RemoveTeamMember(ctx, "t1", "alice"); !errors.Is(err, domain.ErrTeamMemberNotFound) {
		t.Fatalf("expected member not found, got %v", err)
	}

	team, err := store.GetTeam(ctx, "t1")
	if err != nil || len(team.Members) != 1 || team.Members[0] != "bob" {
		t.Fatalf("unexpected team %+v err=%v", team, err)
	}
	// returned rosters are copies
	team.Members[0] = "mallory"
	teams, err := store.ListTeams(ctx, "quiz-1")
	if err != nil || len(teams) != 2 || teams[0].ID != "t1" || teams[1].ID != "t2" {
		t.Fatalf("unexpected teams %+v err=%v", teams, err)
	}
	if teams[0].Members[0] != "bob" {
		t.Fatalf("roster was mutated through a returned team: %v", teams[0].Members)
	}
}
