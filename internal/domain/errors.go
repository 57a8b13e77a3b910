package domain

import "errors"

// Kind classifies errors for the request boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindConflict
	KindValidation
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Internal"
	}
}

// Error is a typed domain failure. Sentinels are compared with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches validation errors produced by Invalid against ErrValidation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (t == ErrValidation && e.Code == ErrValidation.Code)
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrQuizNotFound indicates the quiz could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "QuizNotFound", "quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = newError(KindNotFound, "QuestionNotFound", "question not found")
	// ErrUnknownOption indicates a submitted option ID does not resolve.
	ErrUnknownOption = newError(KindNotFound, "UnknownOption", "option not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = newError(KindNotFound, "ParticipantNotFound", "participant not found in quiz")
	// ErrTeacherNotFound is returned when no teacher profile exists.
	ErrTeacherNotFound = newError(KindNotFound, "TeacherNotFound", "teacher not found")
	// ErrTeamNotFound covers unknown teams and teams of another quiz.
	ErrTeamNotFound       = newError(KindNotFound, "TeamNotFound", "team not found")
	ErrTeamMemberNotFound = newError(KindNotFound, "TeamMemberNotFound", "team member not found")

	ErrAlreadyActive    = newError(KindInvalidState, "AlreadyActive", "quiz is already active")
	ErrAlreadyCompleted = newError(KindInvalidState, "AlreadyCompleted", "quiz is already completed")
	ErrNotActive        = newError(KindInvalidState, "NotActive", "only active quizzes can be completed")
	ErrNoQuestions      = newError(KindInvalidState, "NoQuestions", "cannot start quiz without questions")
	// ErrQuestionClosed rejects answers outside the question's window.
	ErrQuestionClosed = newError(KindInvalidState, "QuestionClosed", "question is not open for answers")
	// ErrStatusConflict is returned by stores when a conditional status transition misses.
	ErrStatusConflict = newError(KindInvalidState, "StatusConflict", "quiz status changed concurrently")
	// ErrQuestionOpen hides per-question results until the answer window closes.
	ErrQuestionOpen = newError(KindInvalidState, "QuestionOpen", "question results are available once the question closes")
	ErrNotTeamQuiz  = newError(KindInvalidState, "NotTeamQuiz", "teams can only be added to team quizzes")

	ErrDuplicateAnswer = newError(KindConflict, "DuplicateAnswer", "you have already answered this question")
	ErrCodeTaken       = newError(KindConflict, "CodeTaken", "join code already in use")
	ErrTeamNameTaken   = newError(KindConflict, "TeamNameTaken", "a team with this name already exists in the quiz")
	ErrAlreadyMember   = newError(KindConflict, "AlreadyTeamMember", "user is already a member of this team")

	ErrOptionMismatch   = newError(KindValidation, "OptionMismatch", "option does not belong to this question")
	ErrTooFewOptions    = newError(KindValidation, "TooFewOptions", "question must have at least 2 options")
	ErrNoCorrectOption  = newError(KindValidation, "NoCorrectOption", "at least one option must be marked as correct")
	ErrValidation       = newError(KindValidation, "Validation", "validation failed")
	ErrUnknownRequest   = newError(KindValidation, "UnknownRequest", "unsupported message type")
	ErrForbidden        = newError(KindForbidden, "Forbidden", "only the quiz teacher can perform this action")
	ErrNotAuthenticated = newError(KindForbidden, "Unauthenticated", "a valid token is required")
	ErrNotTeamMember    = newError(KindForbidden, "NotTeamMember", "user is not on this team's roster")
)

// Invalid builds a validation error with a specific message.
func Invalid(message string) error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: message}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "Internal"
}
