package course

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Role names used in guard failures and conflict errors.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

// Feed item types.
const (
	PostMaterial   = "material"
	PostAssignment = "assignment"
)

type (
	Course struct {
		ID          string    `json:"course_id" db:"id"`
		Title       string    `json:"title" db:"title"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
		NumStudents int       `json:"number_of_students" db:"num_students"`
	}

	// Member is an account seen through a course roster.
	Member struct {
		Login string `json:"login" db:"login"`
		Name  string `json:"name" db:"name"`
	}

	// Roles describes what an account is within one course. At most one
	// of IsTeacher/IsStudent can be true; IsParent can coexist with
	// neither of them only.
	Roles struct {
		IsTeacher bool `json:"is_teacher"`
		IsStudent bool `json:"is_student"`
		IsParent  bool `json:"is_parent"`
		IsAdmin   bool `json:"is_admin"`
	}

	// Material is a course item without grading semantics.
	Material struct {
		CourseID    string      `json:"course_id" db:"course_id"`
		ID          int         `json:"material_id" db:"id"`
		Title       string      `json:"title" db:"title"`
		Description string      `json:"description" db:"description"`
		CreatedAt   time.Time   `json:"created_at" db:"created_at"`
		Author      null.String `json:"author" db:"author"` // null once the author account is deleted
	}

	// Assignment is a gradable course item.
	Assignment struct {
		CourseID    string      `json:"course_id" db:"course_id"`
		ID          int         `json:"assignment_id" db:"id"`
		Title       string      `json:"title" db:"title"`
		Description string      `json:"description" db:"description"`
		CreatedAt   time.Time   `json:"created_at" db:"created_at"`
		Author      null.String `json:"author" db:"author"`
	}

	// FeedItem is one entry of the merged course feed, newest first.
	FeedItem struct {
		CourseID  string      `json:"course_id" db:"course_id"`
		ID        int         `json:"post_id" db:"id"`
		Type      string      `json:"type" db:"type"` // PostMaterial | PostAssignment
		Title     string      `json:"title" db:"title"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
		Author    null.String `json:"author" db:"author"`
	}

	// Submission is a student's answer to an assignment. Once Grade is
	// set the submission is locked for the student; grading stays
	// idempotent and always records the latest grader.
	Submission struct {
		CourseID     string      `json:"course_id" db:"course_id"`
		AssignmentID int         `json:"assignment_id" db:"assignment_id"`
		Student      string      `json:"student_login" db:"student"`
		StudentName  string      `json:"student_name" db:"student_name"`
		Comment      string      `json:"comment" db:"comment"`
		CreatedAt    time.Time   `json:"submitted_at" db:"submitted_at"`
		ModifiedAt   time.Time   `json:"last_modified_at" db:"modified_at"`
		Grade        null.Int    `json:"grade" db:"grade"`
		GradedBy     null.String `json:"graded_by" db:"graded_by"`
	}

	// Attachment is file metadata; contents live in the blob table and
	// are fetched separately.
	Attachment struct {
		FileID     string    `json:"file_id" db:"file_id"`
		Filename   string    `json:"filename" db:"filename"`
		UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	}

	// GradeCell is one (student, assignment) cell of the grade table;
	// ungraded submissions and missing submissions yield a null grade.
	GradeCell struct {
		Student      string   `db:"student"`
		AssignmentID int      `db:"assignment_id"`
		Grade        null.Int `db:"grade"`
	}
)

// Attachment owner kinds.
const (
	OwnerMaterial   = "material"
	OwnerAssignment = "assignment"
	OwnerSubmission = "submission"
)

// AttachmentOwner identifies the item or submission a file hangs off.
// Student is only set for submission attachments.
type AttachmentOwner struct {
	CourseID string
	Kind     string
	ItemID   int
	Student  string
}

func MaterialOwner(courseID string, matID int) AttachmentOwner {
	return AttachmentOwner{CourseID: courseID, Kind: OwnerMaterial, ItemID: matID}
}

func AssignmentOwner(courseID string, assID int) AttachmentOwner {
	return AttachmentOwner{CourseID: courseID, Kind: OwnerAssignment, ItemID: assID}
}

func SubmissionOwner(courseID string, assID int, student string) AttachmentOwner {
	return AttachmentOwner{CourseID: courseID, Kind: OwnerSubmission, ItemID: assID, Student: student}
}
