package course

import (
	"context"
	"errors"
)

// Sentinel errors returned by repositories. Services translate them to
// typed API errors with full context; a unique-constraint violation on a
// membership insert surfaces as ErrDuplicate so a benign invite race
// reads like an ordinary "already has role" failure.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate row")
)

type (
	// AccountDirectory is the slice of the identity store the course
	// package needs: existence and the system admin flag.
	AccountDirectory interface {
		AccountExists(ctx context.Context, login string) (bool, error)
		IsAdmin(ctx context.Context, login string) (bool, error)
	}

	// Repository persists courses, the three membership relations and
	// all course-scoped content. Multi-row mutations (course removal,
	// student removal, account cascades) are transactional inside the
	// implementation: they commit fully or not at all.
	Repository interface {
		// courses
		CourseExists(ctx context.Context, courseID string) (bool, error)
		CreateCourse(ctx context.Context, title, teacher string) (Course, error)
		RemoveCourse(ctx context.Context, courseID string) error
		GetCourse(ctx context.Context, courseID string) (Course, error)
		GetFeed(ctx context.Context, courseID string) ([]FeedItem, error)
		AvailableCourses(ctx context.Context, login string) ([]string, error)

		// memberships
		IsTeacher(ctx context.Context, login, courseID string) (bool, error)
		IsStudent(ctx context.Context, login, courseID string) (bool, error)
		IsParent(ctx context.Context, login, courseID string) (bool, error)
		IsParentOfStudent(ctx context.Context, parent, student, courseID string) (bool, error)
		AddTeacher(ctx context.Context, login, courseID string) error
		RemoveTeacher(ctx context.Context, login, courseID string) error
		CountTeachers(ctx context.Context, courseID string) (int, error)
		AddStudent(ctx context.Context, login, courseID string) error
		// RemoveStudent also detaches every parent observing that student
		// in the course, atomically.
		RemoveStudent(ctx context.Context, login, courseID string) error
		AddParent(ctx context.Context, parent, student, courseID string) error
		RemoveParent(ctx context.Context, parent, student, courseID string) error
		QueryTeachers(ctx context.Context, courseID string) ([]Member, error)
		QueryStudents(ctx context.Context, courseID string) ([]Member, error)
		QueryStudentParents(ctx context.Context, courseID, student string) ([]Member, error)
		QueryParentChildren(ctx context.Context, courseID, parent string) ([]Member, error)

		// materials & assignments
		MaterialExists(ctx context.Context, courseID string, matID int) (bool, error)
		AssignmentExists(ctx context.Context, courseID string, assID int) (bool, error)
		CreateMaterial(ctx context.Context, courseID, title, description, author string) (Material, error)
		RemoveMaterial(ctx context.Context, courseID string, matID int) error
		GetMaterial(ctx context.Context, courseID string, matID int) (Material, error)
		CreateAssignment(ctx context.Context, courseID, title, description, author string) (Assignment, error)
		RemoveAssignment(ctx context.Context, courseID string, assID int) error
		GetAssignment(ctx context.Context, courseID string, assID int) (Assignment, error)
		ListAssignments(ctx context.Context, courseID string) ([]Assignment, error)

		// submissions
		SubmissionExists(ctx context.Context, courseID string, assID int, student string) (bool, error)
		CreateSubmission(ctx context.Context, courseID string, assID int, student, comment string) error
		UpdateSubmissionComment(ctx context.Context, courseID string, assID int, student, comment string) error
		GetSubmission(ctx context.Context, courseID string, assID int, student string) (Submission, error)
		QuerySubmissions(ctx context.Context, courseID string, assID int) ([]Submission, error)
		GradeSubmission(ctx context.Context, courseID string, assID int, student string, grade int, grader string) error
		// QueryGrades returns cells for the given students × assignments;
		// nil slices mean "all".
		QueryGrades(ctx context.Context, courseID string, students []string, assignments []int) ([]GradeCell, error)

		// attachments
		FileExists(ctx context.Context, fileID string) (bool, error)
		AddAttachment(ctx context.Context, owner AttachmentOwner, filename string, content []byte) (Attachment, error)
		QueryAttachments(ctx context.Context, owner AttachmentOwner) ([]Attachment, error)
		GetAttachment(ctx context.Context, owner AttachmentOwner, fileID string) (Attachment, error)
		GetFileContent(ctx context.Context, fileID string) ([]byte, error)
	}
)
