package core

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Stable machine-readable error kinds. Clients key on these; the detail
// strings are for humans and may change.
const (
	KindInvalidTokenStructure  = "INVALID_TOKEN_STRUCTURE"
	KindTokenExpired           = "TOKEN_EXPIRED"
	KindJWTError               = "JWT_ERROR"
	KindInvalidCredentials     = "INVALID_CREDENTIALS"
	KindUserNotFound           = "USER_NOT_FOUND"
	KindUserExists             = "USER_EXISTS"
	KindBadEmail               = "BAD_EMAIL_FORMAT"
	KindWeakPassword           = "WEAK_PASSWORD"
	KindCourseNotFound         = "COURSE_NOT_FOUND"
	KindNotInteger             = "NOT_INTEGER"
	KindCourseItemNotFound     = "COURSE_ITEM_NOT_FOUND"
	KindNoAccessToCourse       = "NO_ACCESS_TO_COURSE"
	KindLacksRole              = "USER_LACKS_ROLE_IN_COURSE"
	KindNoAccessToStudent      = "NO_PARENT_ACCESS_TO_STUDENT"
	KindNoAccessToSubmission   = "NO_ACCESS_TO_SUBMISSION"
	KindAlreadyHasRole         = "USER_ALREADY_HAS_ROLE"
	KindConflictingRole        = "USER_HAS_CONFLICTING_ROLE"
	KindAlreadyParent          = "USER_ALREADY_PARENT_OF_STUDENT"
	KindLastTeacher            = "CANNOT_REMOVE_LAST_TEACHER"
	KindLastAdmin              = "CANNOT_REMOVE_LAST_ADMIN"
	KindSubmissionNotFound     = "NO_SUBMISSION_TO_ASSIGNMENT"
	KindGradedSubmissionLocked = "CANNOT_EDIT_GRADED_SUBMISSION"
	KindFileNotFound           = "FILE_NOT_FOUND"
	KindFileTooLarge           = "FILE_TOO_LARGE"
	KindPoolExhausted          = "CONNECTION_POOL_EXHAUSTED"
)

// Error is a typed API failure: an HTTP-style status class, a stable
// kind tag, a human-readable detail and the structured arguments the
// detail was built from, so the transport layer (or a client) can
// reconstruct a precise message.
type Error struct {
	Status int                    `json:"-"`
	Kind   string                 `json:"kind"`
	Detail string                 `json:"detail"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

func (e *Error) Error() string { return e.Detail }

// IsError reports whether err (or its cause) is a typed API failure.
func IsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(status int, kind, detail string, args map[string]interface{}) *Error {
	return &Error{Status: status, Kind: kind, Detail: detail, Args: args}
}

func ErrInvalidTokenStructure() *Error {
	return newError(http.StatusUnauthorized, KindInvalidTokenStructure, "Invalid token structure", nil)
}

func ErrTokenExpired() *Error {
	return newError(http.StatusUnauthorized, KindTokenExpired, "Token expired", nil)
}

func ErrJWT(msg string) *Error {
	return newError(http.StatusUnauthorized, KindJWTError, msg, map[string]interface{}{"message": msg})
}

func ErrInvalidCredentials() *Error {
	return newError(http.StatusUnauthorized, KindInvalidCredentials, "Invalid login or password", nil)
}

func ErrUserNotFound(login string) *Error {
	return newError(http.StatusNotFound, KindUserNotFound,
		fmt.Sprintf("This user login is not registered in the system: %s", login),
		map[string]interface{}{"login": login})
}

func ErrUserExists(login string) *Error {
	return newError(http.StatusForbidden, KindUserExists,
		fmt.Sprintf("This user login has already been registered in the system: %s", login),
		map[string]interface{}{"login": login})
}

func ErrBadEmail(email string) *Error {
	return newError(http.StatusBadRequest, KindBadEmail,
		fmt.Sprintf("Incorrect email format: %s", email),
		map[string]interface{}{"email": email})
}

func ErrWeakPassword() *Error {
	return newError(http.StatusBadRequest, KindWeakPassword,
		"Password must be at least 8 characters and contain a digit, a letter and a special character", nil)
}

func ErrCourseNotFound(courseID string) *Error {
	return newError(http.StatusNotFound, KindCourseNotFound,
		fmt.Sprintf("The course ID %s does not match any course", courseID),
		map[string]interface{}{"course_id": courseID})
}

func ErrNotInteger(param, value string) *Error {
	return newError(http.StatusBadRequest, KindNotInteger,
		fmt.Sprintf("The value of parameter %q must be integer, but received %q", param, value),
		map[string]interface{}{"param": param, "value": value})
}

func ErrCourseItemNotFound(courseID string, itemID int) *Error {
	return newError(http.StatusNotFound, KindCourseItemNotFound,
		fmt.Sprintf("In the course %s, the item %d does not exist", courseID, itemID),
		map[string]interface{}{"course_id": courseID, "item_id": itemID})
}

func ErrNoAccessToCourse(courseID, login string) *Error {
	return newError(http.StatusForbidden, KindNoAccessToCourse,
		fmt.Sprintf("The user %q has no access to the course %s", login, courseID),
		map[string]interface{}{"course_id": courseID, "login": login})
}

func ErrLacksRole(courseID, login, role string) *Error {
	return newError(http.StatusForbidden, KindLacksRole,
		fmt.Sprintf("The user %q must have the %q role in the course %s, but does not", login, role, courseID),
		map[string]interface{}{"course_id": courseID, "login": login, "role": role})
}

func ErrNotAdmin(login string) *Error {
	return newError(http.StatusForbidden, KindLacksRole,
		fmt.Sprintf("The user %q must have admin rights, but does not", login),
		map[string]interface{}{"login": login, "role": "admin"})
}

func ErrNoAccessToStudent(courseID, parent, student string) *Error {
	return newError(http.StatusForbidden, KindNoAccessToStudent,
		fmt.Sprintf("The user %q has no parental access to the student %q in the course %s", parent, student, courseID),
		map[string]interface{}{"course_id": courseID, "parent": parent, "student": student})
}

func ErrNoAccessToSubmission(courseID, student, login string) *Error {
	return newError(http.StatusForbidden, KindNoAccessToSubmission,
		fmt.Sprintf("The user %q has no access to the submission of %q in the course %s", login, student, courseID),
		map[string]interface{}{"course_id": courseID, "student": student, "login": login})
}

func ErrAlreadyHasRole(courseID, login, role string) *Error {
	return newError(http.StatusForbidden, KindAlreadyHasRole,
		fmt.Sprintf("The user %q already has the %q role in the course %s", login, role, courseID),
		map[string]interface{}{"course_id": courseID, "login": login, "role": role})
}

func ErrConflictingRole(courseID, login, has, wanted string) *Error {
	return newError(http.StatusForbidden, KindConflictingRole,
		fmt.Sprintf("The user %q already has the %q role in the course %s and cannot also become a %s",
			login, has, courseID, wanted),
		map[string]interface{}{"course_id": courseID, "login": login, "has_role": has, "wanted_role": wanted})
}

func ErrAlreadyParent(courseID, parent, student string) *Error {
	return newError(http.StatusForbidden, KindAlreadyParent,
		fmt.Sprintf("The user %q is already a parent of the student %q in the course %s", parent, student, courseID),
		map[string]interface{}{"course_id": courseID, "parent": parent, "student": student})
}

func ErrLastTeacher(courseID, login string) *Error {
	return newError(http.StatusForbidden, KindLastTeacher,
		fmt.Sprintf("Cannot remove %q: the last teacher of the course %s", login, courseID),
		map[string]interface{}{"course_id": courseID, "login": login})
}

func ErrLastAdmin(login string) *Error {
	return newError(http.StatusForbidden, KindLastAdmin,
		fmt.Sprintf("Cannot remove %q: the last admin of the system", login),
		map[string]interface{}{"login": login})
}

func ErrSubmissionNotFound(courseID string, assignmentID int, student string) *Error {
	return newError(http.StatusNotFound, KindSubmissionNotFound,
		fmt.Sprintf("In the course %s, the user %q has not submitted anything for the assignment %d",
			courseID, student, assignmentID),
		map[string]interface{}{"course_id": courseID, "assignment_id": assignmentID, "student": student})
}

func ErrGradedSubmissionLocked(courseID string, assignmentID int, student string) *Error {
	return newError(http.StatusForbidden, KindGradedSubmissionLocked,
		fmt.Sprintf("In the course %s, the submission of %q for the assignment %d is graded and can no longer be edited",
			courseID, student, assignmentID),
		map[string]interface{}{"course_id": courseID, "assignment_id": assignmentID, "student": student})
}

func ErrFileNotFound(fileID string) *Error {
	return newError(http.StatusNotFound, KindFileNotFound,
		fmt.Sprintf("No file with ID %s", fileID),
		map[string]interface{}{"file_id": fileID})
}

func ErrFileTooLarge(maxSize int64) *Error {
	return newError(http.StatusRequestEntityTooLarge, KindFileTooLarge,
		fmt.Sprintf("The uploaded file exceeds the maximum allowed size of %d bytes", maxSize),
		map[string]interface{}{"max_size": maxSize})
}

func ErrPoolExhausted() *Error {
	return newError(http.StatusServiceUnavailable, KindPoolExhausted,
		"No database connection available", nil)
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s *shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
