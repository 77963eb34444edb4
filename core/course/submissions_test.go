package course_test

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/course"
)

// newAssignment returns the course from newCourse plus one assignment,
// with its id already in string form for the string-typed API.
func newAssignment(t *testing.T, svc *course.Service) (course.Course, string) {
	t.Helper()
	crs := newCourse(t, svc)
	ass, err := svc.CreateAssignment(context.Background(), crs.ID, "Essay", "write it", teacher)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return crs, strconv.Itoa(ass.ID)
}

func TestService_Submit(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	// only enrolled students submit
	_, err := svc.Submit(ctx, crs.ID, assID, teacher, "hi")
	checkKind(t, err, core.KindLacksRole)
	_, err = svc.Submit(ctx, crs.ID, "999", student, "hi")
	checkKind(t, err, core.KindCourseItemNotFound)
	_, err = svc.Submit(ctx, crs.ID, "lol", student, "hi")
	checkKind(t, err, core.KindNotInteger)

	sub, err := svc.Submit(ctx, crs.ID, assID, student, "first draft")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	assert.Equal(t, "first draft", sub.Comment)
	assert.False(t, sub.Grade.Valid)

	// resubmitting replaces the comment
	sub, err = svc.Submit(ctx, crs.ID, assID, student, "final draft")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	assert.Equal(t, "final draft", sub.Comment)

	// graded work is frozen
	if _, err = svc.Grade(ctx, crs.ID, assID, student, "9", teacher); err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	_, err = svc.Submit(ctx, crs.ID, assID, student, "one more thing")
	checkKind(t, err, core.KindGradedSubmissionLocked)
}

func TestService_GetSubmission_access(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	if _, err := svc.Submit(ctx, crs.ID, assID, student, "draft"); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	// fellow students and unrelated parents are locked out
	if err := svc.InviteStudent(ctx, crs.ID, student2, teacher); err != nil {
		t.Fatalf("InviteStudent() failed: %v", err)
	}
	_, err := svc.GetSubmission(ctx, crs.ID, assID, student, student2)
	checkKind(t, err, core.KindNoAccessToSubmission)
	_, err = svc.GetSubmission(ctx, crs.ID, assID, student, outsider)
	checkKind(t, err, core.KindNoAccessToSubmission)

	// the owner, their parent, the teacher and admins may read
	for _, login := range []string{student, parent, teacher, admin} {
		if _, err = svc.GetSubmission(ctx, crs.ID, assID, student, login); err != nil {
			t.Errorf("GetSubmission() as %s failed: %v", login, err)
		}
	}

	// nothing submitted yet
	_, err = svc.GetSubmission(ctx, crs.ID, assID, student2, student2)
	checkKind(t, err, core.KindSubmissionNotFound)
}

func TestService_Submissions_teacherOnly(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	if _, err := svc.Submit(ctx, crs.ID, assID, student, "draft"); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	_, err := svc.Submissions(ctx, crs.ID, assID, student)
	checkKind(t, err, core.KindLacksRole)
	_, err = svc.Submissions(ctx, crs.ID, assID, parent)
	checkKind(t, err, core.KindLacksRole)

	subs, err := svc.Submissions(ctx, crs.ID, assID, teacher)
	if err != nil {
		t.Fatalf("Submissions() failed: %v", err)
	}
	if len(subs) != 1 || subs[0].Student != student {
		t.Errorf("Submissions() = %+v", subs)
	}
	assert.Equal(t, "Student", subs[0].StudentName)
}

func TestService_Grade(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	submitted, err := svc.Submit(ctx, crs.ID, assID, student, "draft")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	_, err = svc.Grade(ctx, crs.ID, assID, student, "9", student)
	checkKind(t, err, core.KindLacksRole)
	_, err = svc.Grade(ctx, crs.ID, assID, student2, "9", teacher)
	checkKind(t, err, core.KindLacksRole) // student2 is not enrolled
	_, err = svc.Grade(ctx, crs.ID, assID, student, "ten", teacher)
	checkKind(t, err, core.KindNotInteger)

	sub, err := svc.Grade(ctx, crs.ID, assID, student, "9", teacher)
	if err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	assert.Equal(t, 9, sub.Grade.Int)
	assert.Equal(t, teacher, sub.GradedBy.String)

	// grading leaves the modification time at the student's last edit
	assert.True(t, sub.ModifiedAt.Equal(submitted.ModifiedAt))

	// grading again overwrites grade and grader
	if err = svc.InviteTeacher(ctx, crs.ID, teacher2, teacher); err != nil {
		t.Fatalf("InviteTeacher() failed: %v", err)
	}
	sub, err = svc.Grade(ctx, crs.ID, assID, student, "10", teacher2)
	if err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	assert.Equal(t, 10, sub.Grade.Int)
	assert.Equal(t, teacher2, sub.GradedBy.String)
}

func TestService_SubmissionAttachments(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	if _, err := svc.Submit(ctx, crs.ID, assID, student, "draft"); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	// only the owner (or an admin) attaches
	_, err := svc.AttachToSubmission(ctx, crs.ID, assID, student, teacher, "essay.txt", bytes.NewReader([]byte("x")))
	checkKind(t, err, core.KindLacksRole)

	att, err := svc.AttachToSubmission(ctx, crs.ID, assID, student, student, "essay.txt", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("AttachToSubmission() failed: %v", err)
	}

	// the submission audience may list and download
	atts, err := svc.SubmissionAttachments(ctx, crs.ID, assID, student, parent)
	if err != nil {
		t.Fatalf("SubmissionAttachments() failed: %v", err)
	}
	assert.Equal(t, []course.Attachment{att}, atts)

	got, content, err := svc.DownloadSubmissionAttachment(ctx, crs.ID, assID, student, att.FileID, teacher)
	if err != nil {
		t.Fatalf("DownloadSubmissionAttachment() failed: %v", err)
	}
	assert.Equal(t, att, got)
	assert.Equal(t, []byte("hello"), content)

	_, err = svc.SubmissionAttachments(ctx, crs.ID, assID, student, outsider)
	checkKind(t, err, core.KindNoAccessToSubmission)
	_, _, err = svc.DownloadSubmissionAttachment(ctx, crs.ID, assID, student, "nope", teacher)
	checkKind(t, err, core.KindFileNotFound)

	// graded submissions accept no further files
	if _, err = svc.Grade(ctx, crs.ID, assID, student, "9", teacher); err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	_, err = svc.AttachToSubmission(ctx, crs.ID, assID, student, student, "late.txt", bytes.NewReader([]byte("x")))
	checkKind(t, err, core.KindGradedSubmissionLocked)
}

func TestService_ItemAttachments(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs, assID := newAssignment(t, svc)

	// teachers attach course content; students do not
	_, err := svc.AttachToAssignment(ctx, crs.ID, assID, student, "brief.pdf", bytes.NewReader([]byte("x")))
	checkKind(t, err, core.KindLacksRole)

	att, err := svc.AttachToAssignment(ctx, crs.ID, assID, teacher, "brief.pdf", bytes.NewReader([]byte("brief")))
	if err != nil {
		t.Fatalf("AttachToAssignment() failed: %v", err)
	}

	// anyone in the course downloads; outsiders do not
	_, _, err = svc.DownloadAssignmentAttachment(ctx, crs.ID, assID, att.FileID, outsider)
	checkKind(t, err, core.KindNoAccessToCourse)
	_, content, err := svc.DownloadAssignmentAttachment(ctx, crs.ID, assID, att.FileID, parent)
	if err != nil {
		t.Fatalf("DownloadAssignmentAttachment() failed: %v", err)
	}
	assert.Equal(t, []byte("brief"), content)

	// listings follow upload order
	att2, err := svc.AttachToAssignment(ctx, crs.ID, assID, teacher, "rubric.pdf", bytes.NewReader([]byte("r")))
	if err != nil {
		t.Fatalf("AttachToAssignment() failed: %v", err)
	}
	atts, err := svc.AssignmentAttachments(ctx, crs.ID, assID, student)
	if err != nil {
		t.Fatalf("AssignmentAttachments() failed: %v", err)
	}
	assert.Equal(t, []course.Attachment{att, att2}, atts)

	// a material attachment is not reachable through the assignment routes
	mat, err := svc.CreateMaterial(ctx, crs.ID, "Notes", "", teacher)
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}
	matAtt, err := svc.AttachToMaterial(ctx, crs.ID, strconv.Itoa(mat.ID), teacher, "notes.txt", bytes.NewReader([]byte("n")))
	if err != nil {
		t.Fatalf("AttachToMaterial() failed: %v", err)
	}
	_, _, err = svc.DownloadAssignmentAttachment(ctx, crs.ID, assID, matAtt.FileID, student)
	checkKind(t, err, core.KindFileNotFound)

	// the upload cap is enforced
	huge := bytes.Repeat([]byte("a"), int(1<<20)+1)
	_, err = svc.AttachToAssignment(ctx, crs.ID, assID, teacher, "huge.bin", bytes.NewReader(huge))
	checkKind(t, err, core.KindFileTooLarge)
}

func TestService_GradeTable(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	essay, err := svc.CreateAssignment(ctx, crs.ID, "Essay", "", teacher)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	quiz, err := svc.CreateAssignment(ctx, crs.ID, "Quiz", "", teacher)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	if err = svc.InviteStudent(ctx, crs.ID, student2, teacher); err != nil {
		t.Fatalf("InviteStudent() failed: %v", err)
	}

	essayID := strconv.Itoa(essay.ID)
	if _, err = svc.Submit(ctx, crs.ID, essayID, student, "mine"); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if _, err = svc.Grade(ctx, crs.ID, essayID, student, "8", teacher); err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}

	// students have no grade table of their own
	_, err = svc.GradeTable(ctx, crs.ID, student, nil)
	checkKind(t, err, core.KindLacksRole)

	// teachers see every student, sorted by login; ungraded cells are null
	table, err := svc.GradeTable(ctx, crs.ID, teacher, nil)
	if err != nil {
		t.Fatalf("GradeTable() failed: %v", err)
	}
	if len(table.Columns) != 2 || len(table.Rows) != 2 {
		t.Fatalf("GradeTable() = %d cols, %d rows; want 2, 2", len(table.Columns), len(table.Rows))
	}
	assert.Equal(t, student2, table.Rows[0].Login)
	assert.False(t, table.Rows[0].Grades[0].Valid)
	assert.Equal(t, student, table.Rows[1].Login)
	assert.Equal(t, 8, table.Rows[1].Grades[0].Int)
	assert.False(t, table.Rows[1].Grades[1].Valid)

	// a parent sees only their own children
	table, err = svc.GradeTable(ctx, crs.ID, parent, nil)
	if err != nil {
		t.Fatalf("GradeTable() failed: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0].Login != student {
		t.Fatalf("GradeTable() rows = %+v", table.Rows)
	}

	// explicit ids select and order the columns
	table, err = svc.GradeTable(ctx, crs.ID, teacher, []string{strconv.Itoa(quiz.ID), essayID})
	if err != nil {
		t.Fatalf("GradeTable() failed: %v", err)
	}
	assert.Equal(t, []string{"Quiz", "Essay"}, []string{table.Columns[0].Title, table.Columns[1].Title})
	assert.Equal(t, 8, table.Rows[1].Grades[1].Int)

	_, err = svc.GradeTable(ctx, crs.ID, teacher, []string{"lol"})
	checkKind(t, err, core.KindNotInteger)
	_, err = svc.GradeTable(ctx, crs.ID, teacher, []string{"999"})
	checkKind(t, err, core.KindCourseItemNotFound)
}
