package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/course"
)

const pqUniqueViolation = "23505"

type courseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

// translate maps driver errors to the package sentinels. Acquisition is
// the only point a query blocks: a context deadline hit while waiting
// means every pooled connection is in use.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return course.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrPoolExhausted()
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return course.ErrDuplicate
	}
	return err
}

// courses

func (repo *courseRepository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, courseID)
	return exists, err
}

func (repo *courseRepository) CreateCourse(ctx context.Context, title, teacher string) (course.Course, error) {
	var crs course.Course
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &crs,
			`INSERT INTO courses (id, title) VALUES ($1, $2) RETURNING id, title, created_at, 0 AS num_students`,
			uuid.New().String(), title); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO course_teachers (course_id, login) VALUES ($1, $2)`, crs.ID, teacher)
		return err
	})
	return crs, translate(err)
}

func (repo *courseRepository) RemoveCourse(ctx context.Context, courseID string) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return removeCourseTx(ctx, tx, courseID)
	})
}

func (repo *courseRepository) GetCourse(ctx context.Context, courseID string) (course.Course, error) {
	var crs course.Course
	err := repo.db.GetContext(ctx, &crs,
		`SELECT c.id, c.title, c.created_at,
		        (SELECT COUNT(*) FROM course_students s WHERE s.course_id = c.id) AS num_students
		 FROM courses c WHERE c.id = $1`, courseID)
	return crs, translate(err)
}

func (repo *courseRepository) GetFeed(ctx context.Context, courseID string) ([]course.FeedItem, error) {
	feed := make([]course.FeedItem, 0)
	err := repo.db.SelectContext(ctx, &feed,
		`SELECT course_id, id, 'material' AS type, title, created_at, author FROM materials WHERE course_id = $1
		 UNION ALL
		 SELECT course_id, id, 'assignment' AS type, title, created_at, author FROM assignments WHERE course_id = $1
		 ORDER BY created_at DESC, id DESC`, courseID)
	return feed, err
}

func (repo *courseRepository) AvailableCourses(ctx context.Context, login string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT course_id FROM (
		     SELECT course_id FROM course_teachers WHERE login = $1
		     UNION ALL
		     SELECT course_id FROM course_students WHERE login = $1
		     UNION ALL
		     SELECT course_id FROM course_parents WHERE parent = $1
		 ) m ORDER BY course_id`, login)
	return ids, err
}

// memberships

func (repo *courseRepository) IsTeacher(ctx context.Context, login, courseID string) (bool, error) {
	return repo.memberExists(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_teachers WHERE course_id = $1 AND login = $2)`, courseID, login)
}

func (repo *courseRepository) IsStudent(ctx context.Context, login, courseID string) (bool, error) {
	return repo.memberExists(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_students WHERE course_id = $1 AND login = $2)`, courseID, login)
}

func (repo *courseRepository) IsParent(ctx context.Context, login, courseID string) (bool, error) {
	return repo.memberExists(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_parents WHERE course_id = $1 AND parent = $2)`, courseID, login)
}

func (repo *courseRepository) IsParentOfStudent(ctx context.Context, parent, student, courseID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM course_parents WHERE course_id = $1 AND parent = $2 AND student = $3)`,
		courseID, parent, student)
	return exists, err
}

func (repo *courseRepository) memberExists(ctx context.Context, query, courseID, login string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, query, courseID, login)
	return exists, err
}

func (repo *courseRepository) AddTeacher(ctx context.Context, login, courseID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course_teachers (course_id, login) VALUES ($1, $2)`, courseID, login)
	return translate(err)
}

func (repo *courseRepository) RemoveTeacher(ctx context.Context, login, courseID string) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM course_teachers WHERE course_id = $1 AND login = $2`, courseID, login)
	return err
}

func (repo *courseRepository) CountTeachers(ctx context.Context, courseID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM course_teachers WHERE course_id = $1`, courseID)
	return n, err
}

func (repo *courseRepository) AddStudent(ctx context.Context, login, courseID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course_students (course_id, login) VALUES ($1, $2)`, courseID, login)
	return translate(err)
}

func (repo *courseRepository) RemoveStudent(ctx context.Context, login, courseID string) error {
	// parent links and submissions cascade off the membership row; the
	// submission attachment blobs need the explicit delete
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE id IN (
			     SELECT file_id FROM attachments WHERE course_id = $1 AND owner_kind = 'submission' AND student = $2)`,
			courseID, login); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM course_students WHERE course_id = $1 AND login = $2`, courseID, login)
		return err
	})
}

func (repo *courseRepository) AddParent(ctx context.Context, parent, student, courseID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course_parents (course_id, parent, student) VALUES ($1, $2, $3)`, courseID, parent, student)
	return translate(err)
}

func (repo *courseRepository) RemoveParent(ctx context.Context, parent, student, courseID string) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM course_parents WHERE course_id = $1 AND parent = $2 AND student = $3`, courseID, parent, student)
	return err
}

func (repo *courseRepository) QueryTeachers(ctx context.Context, courseID string) ([]course.Member, error) {
	return repo.queryMembers(ctx,
		`SELECT a.login, a.name FROM course_teachers m
		 JOIN accounts a ON a.login = m.login
		 WHERE m.course_id = $1 ORDER BY a.login`, courseID)
}

func (repo *courseRepository) QueryStudents(ctx context.Context, courseID string) ([]course.Member, error) {
	return repo.queryMembers(ctx,
		`SELECT a.login, a.name FROM course_students m
		 JOIN accounts a ON a.login = m.login
		 WHERE m.course_id = $1 ORDER BY a.login`, courseID)
}

func (repo *courseRepository) QueryStudentParents(ctx context.Context, courseID, student string) ([]course.Member, error) {
	members := make([]course.Member, 0)
	err := repo.db.SelectContext(ctx, &members,
		`SELECT a.login, a.name FROM course_parents m
		 JOIN accounts a ON a.login = m.parent
		 WHERE m.course_id = $1 AND m.student = $2 ORDER BY a.login`, courseID, student)
	return members, err
}

func (repo *courseRepository) QueryParentChildren(ctx context.Context, courseID, parent string) ([]course.Member, error) {
	members := make([]course.Member, 0)
	err := repo.db.SelectContext(ctx, &members,
		`SELECT a.login, a.name FROM course_parents m
		 JOIN accounts a ON a.login = m.student
		 WHERE m.course_id = $1 AND m.parent = $2 ORDER BY a.login`, courseID, parent)
	return members, err
}

func (repo *courseRepository) queryMembers(ctx context.Context, query, courseID string) ([]course.Member, error) {
	members := make([]course.Member, 0)
	err := repo.db.SelectContext(ctx, &members, query, courseID)
	return members, err
}

// materials & assignments

func (repo *courseRepository) MaterialExists(ctx context.Context, courseID string, matID int) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM materials WHERE course_id = $1 AND id = $2)`, courseID, matID)
	return exists, err
}

func (repo *courseRepository) AssignmentExists(ctx context.Context, courseID string, assID int) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM assignments WHERE course_id = $1 AND id = $2)`, courseID, assID)
	return exists, err
}

func (repo *courseRepository) CreateMaterial(ctx context.Context, courseID, title, description, author string) (course.Material, error) {
	var mat course.Material
	err := repo.db.GetContext(ctx, &mat,
		`INSERT INTO materials (course_id, title, description, author) VALUES ($1, $2, $3, $4)
		 RETURNING course_id, id, title, description, created_at, author`, courseID, title, description, author)
	return mat, err
}

func (repo *courseRepository) RemoveMaterial(ctx context.Context, courseID string, matID int) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return removeItemTx(ctx, tx, courseID, course.OwnerMaterial, matID,
			`DELETE FROM materials WHERE course_id = $1 AND id = $2`)
	})
}

func (repo *courseRepository) GetMaterial(ctx context.Context, courseID string, matID int) (course.Material, error) {
	var mat course.Material
	err := repo.db.GetContext(ctx, &mat,
		`SELECT course_id, id, title, description, created_at, author
		 FROM materials WHERE course_id = $1 AND id = $2`, courseID, matID)
	return mat, translate(err)
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, courseID, title, description, author string) (course.Assignment, error) {
	var ass course.Assignment
	err := repo.db.GetContext(ctx, &ass,
		`INSERT INTO assignments (course_id, title, description, author) VALUES ($1, $2, $3, $4)
		 RETURNING course_id, id, title, description, created_at, author`, courseID, title, description, author)
	return ass, err
}

func (repo *courseRepository) RemoveAssignment(ctx context.Context, courseID string, assID int) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// submission attachments hang off the same assignment id
		if err := removeItemTx(ctx, tx, courseID, course.OwnerSubmission, assID, ""); err != nil {
			return err
		}
		return removeItemTx(ctx, tx, courseID, course.OwnerAssignment, assID,
			`DELETE FROM assignments WHERE course_id = $1 AND id = $2`)
	})
}

func (repo *courseRepository) GetAssignment(ctx context.Context, courseID string, assID int) (course.Assignment, error) {
	var ass course.Assignment
	err := repo.db.GetContext(ctx, &ass,
		`SELECT course_id, id, title, description, created_at, author
		 FROM assignments WHERE course_id = $1 AND id = $2`, courseID, assID)
	return ass, translate(err)
}

func (repo *courseRepository) ListAssignments(ctx context.Context, courseID string) ([]course.Assignment, error) {
	asses := make([]course.Assignment, 0)
	err := repo.db.SelectContext(ctx, &asses,
		`SELECT course_id, id, title, description, created_at, author
		 FROM assignments WHERE course_id = $1 ORDER BY created_at, id`, courseID)
	return asses, err
}

// removeItemTx deletes an item's attachments with their blobs, then the
// item row itself when itemQuery is set. The attachment blobs need the
// explicit delete since the blob table has no owner link.
func removeItemTx(ctx context.Context, tx *sqlx.Tx, courseID, kind string, itemID int, itemQuery string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE id IN (
		     SELECT file_id FROM attachments WHERE course_id = $1 AND owner_kind = $2 AND item_id = $3)`,
		courseID, kind, itemID); err != nil {
		return err
	}
	if itemQuery == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, itemQuery, courseID, itemID)
	return err
}

// submissions

func (repo *courseRepository) SubmissionExists(ctx context.Context, courseID string, assID int, student string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE course_id = $1 AND assignment_id = $2 AND student = $3)`,
		courseID, assID, student)
	return exists, err
}

func (repo *courseRepository) CreateSubmission(ctx context.Context, courseID string, assID int, student, comment string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO submissions (course_id, assignment_id, student, comment) VALUES ($1, $2, $3, $4)`,
		courseID, assID, student, comment)
	return translate(err)
}

func (repo *courseRepository) UpdateSubmissionComment(ctx context.Context, courseID string, assID int, student, comment string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE submissions SET comment = $4, modified_at = $5
		 WHERE course_id = $1 AND assignment_id = $2 AND student = $3`,
		courseID, assID, student, comment, time.Now().UTC())
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (repo *courseRepository) GetSubmission(ctx context.Context, courseID string, assID int, student string) (course.Submission, error) {
	var sub course.Submission
	err := repo.db.GetContext(ctx, &sub,
		`SELECT s.course_id, s.assignment_id, s.student, a.name AS student_name,
		        s.comment, s.submitted_at, s.modified_at, s.grade, s.graded_by
		 FROM submissions s
		 JOIN accounts a ON a.login = s.student
		 WHERE s.course_id = $1 AND s.assignment_id = $2 AND s.student = $3`,
		courseID, assID, student)
	return sub, translate(err)
}

func (repo *courseRepository) QuerySubmissions(ctx context.Context, courseID string, assID int) ([]course.Submission, error) {
	subs := make([]course.Submission, 0)
	err := repo.db.SelectContext(ctx, &subs,
		`SELECT s.course_id, s.assignment_id, s.student, a.name AS student_name,
		        s.comment, s.submitted_at, s.modified_at, s.grade, s.graded_by
		 FROM submissions s
		 JOIN accounts a ON a.login = s.student
		 WHERE s.course_id = $1 AND s.assignment_id = $2
		 ORDER BY s.student`, courseID, assID)
	return subs, err
}

func (repo *courseRepository) GradeSubmission(ctx context.Context, courseID string, assID int, student string, grade int, grader string) error {
	// modified_at stays the student's last edit time so a grade older
	// than the work remains detectable
	res, err := repo.db.ExecContext(ctx,
		`UPDATE submissions SET grade = $4, graded_by = $5
		 WHERE course_id = $1 AND assignment_id = $2 AND student = $3`,
		courseID, assID, student, grade, grader)
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (repo *courseRepository) QueryGrades(ctx context.Context, courseID string, students []string, assignments []int) ([]course.GradeCell, error) {
	query := `SELECT student, assignment_id, grade FROM submissions WHERE course_id = ?`
	args := []interface{}{courseID}
	if len(students) > 0 {
		query += ` AND student IN (?)`
		args = append(args, students)
	}
	if len(assignments) > 0 {
		query += ` AND assignment_id IN (?)`
		args = append(args, assignments)
	}
	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding query")
	}

	cells := make([]course.GradeCell, 0)
	err = repo.db.SelectContext(ctx, &cells, repo.db.Rebind(query), inArgs...)
	return cells, err
}

// attachments

func (repo *courseRepository) FileExists(ctx context.Context, fileID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, fileID)
	return exists, err
}

func (repo *courseRepository) AddAttachment(ctx context.Context, owner course.AttachmentOwner, filename string, content []byte) (course.Attachment, error) {
	var att course.Attachment
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		fileID := uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files (id, content) VALUES ($1, $2)`, fileID, content); err != nil {
			return err
		}
		return tx.GetContext(ctx, &att,
			`INSERT INTO attachments (file_id, course_id, owner_kind, item_id, student, filename)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING file_id, filename, uploaded_at`,
			fileID, owner.CourseID, owner.Kind, owner.ItemID, owner.Student, filename)
	})
	return att, err
}

func (repo *courseRepository) QueryAttachments(ctx context.Context, owner course.AttachmentOwner) ([]course.Attachment, error) {
	atts := make([]course.Attachment, 0)
	err := repo.db.SelectContext(ctx, &atts,
		`SELECT file_id, filename, uploaded_at FROM attachments
		 WHERE course_id = $1 AND owner_kind = $2 AND item_id = $3 AND student = $4
		 ORDER BY uploaded_at, file_id`,
		owner.CourseID, owner.Kind, owner.ItemID, owner.Student)
	return atts, err
}

func (repo *courseRepository) GetAttachment(ctx context.Context, owner course.AttachmentOwner, fileID string) (course.Attachment, error) {
	var att course.Attachment
	err := repo.db.GetContext(ctx, &att,
		`SELECT file_id, filename, uploaded_at FROM attachments
		 WHERE file_id = $1 AND course_id = $2 AND owner_kind = $3 AND item_id = $4 AND student = $5`,
		fileID, owner.CourseID, owner.Kind, owner.ItemID, owner.Student)
	return att, translate(err)
}

func (repo *courseRepository) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	var content []byte
	err := repo.db.GetContext(ctx, &content, `SELECT content FROM files WHERE id = $1`, fileID)
	return content, translate(err)
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
