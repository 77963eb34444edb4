package course

import (
	"context"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
)

// Guard is the authorization engine: a library of existence and access
// predicates every use case runs before touching the stores.
//
// Each predicate returns nil when the check passes, a *core.Error when
// it fails, or a wrapped store error. Returning the error as-is at a
// guard point is the aborting form; Check converts a result to a plain
// boolean for multi-branch logic. Composed predicates propagate the
// first real failure: existence is always decided before permission,
// and a permission failure names the exact role that was missing.
type Guard struct {
	accounts AccountDirectory
	repo     Repository
}

func NewGuard(accounts AccountDirectory, repo Repository) *Guard {
	return &Guard{accounts: accounts, repo: repo}
}

// Check converts a predicate result to a boolean. Typed guard failures
// read as false; infrastructure errors keep propagating.
func Check(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if _, ok := core.IsError(err); ok {
		return false, nil
	}
	return false, err
}

// ParseItemID parses a course item id supplied as a string, failing with
// the not-integer kind before any lookup happens.
func ParseItemID(param, value string) (int, error) {
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, core.ErrNotInteger(param, value)
	}
	return id, nil
}

func (g *Guard) UserExists(ctx context.Context, login string) error {
	exists, err := g.accounts.AccountExists(ctx, login)
	if err != nil {
		return pkgerrors.Wrap(err, "checking account existence")
	}
	if !exists {
		return core.ErrUserNotFound(login)
	}
	return nil
}

func (g *Guard) CourseExists(ctx context.Context, courseID string) error {
	exists, err := g.repo.CourseExists(ctx, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking course existence")
	}
	if !exists {
		return core.ErrCourseNotFound(courseID)
	}
	return nil
}

// MaterialExists parses the raw id, requires the course to exist, then
// looks the material up within it. The parsed id is returned for reuse.
func (g *Guard) MaterialExists(ctx context.Context, courseID, rawID string) (int, error) {
	matID, err := ParseItemID("material_id", rawID)
	if err != nil {
		return 0, err
	}
	if err = g.CourseExists(ctx, courseID); err != nil {
		return 0, err
	}
	exists, err := g.repo.MaterialExists(ctx, courseID, matID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "checking material existence")
	}
	if !exists {
		return 0, core.ErrCourseItemNotFound(courseID, matID)
	}
	return matID, nil
}

// AssignmentExists is the assignment analogue of MaterialExists.
func (g *Guard) AssignmentExists(ctx context.Context, courseID, rawID string) (int, error) {
	assID, err := ParseItemID("assignment_id", rawID)
	if err != nil {
		return 0, err
	}
	if err = g.CourseExists(ctx, courseID); err != nil {
		return 0, err
	}
	exists, err := g.repo.AssignmentExists(ctx, courseID, assID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "checking assignment existence")
	}
	if !exists {
		return 0, core.ErrCourseItemNotFound(courseID, assID)
	}
	return assID, nil
}

// CourseAccess passes when the user is a teacher, student or parent in
// the course, or a system admin. Any one role suffices.
func (g *Guard) CourseAccess(ctx context.Context, login, courseID string) error {
	if err := g.UserExists(ctx, login); err != nil {
		return err
	}
	if err := g.CourseExists(ctx, courseID); err != nil {
		return err
	}
	for _, pred := range []func(context.Context, string, string) (bool, error){
		g.repo.IsTeacher, g.repo.IsStudent, g.repo.IsParent,
	} {
		ok, err := pred(ctx, login, courseID)
		if err != nil {
			return pkgerrors.Wrap(err, "checking course membership")
		}
		if ok {
			return nil
		}
	}
	admin, err := g.accounts.IsAdmin(ctx, login)
	if err != nil {
		return pkgerrors.Wrap(err, "checking admin flag")
	}
	if admin {
		return nil
	}
	return core.ErrNoAccessToCourse(courseID, login)
}

func (g *Guard) TeacherAccess(ctx context.Context, login, courseID string) error {
	return g.roleAccess(ctx, login, courseID, RoleTeacher, g.repo.IsTeacher)
}

func (g *Guard) StudentAccess(ctx context.Context, login, courseID string) error {
	return g.roleAccess(ctx, login, courseID, RoleStudent, g.repo.IsStudent)
}

func (g *Guard) ParentAccess(ctx context.Context, login, courseID string) error {
	return g.roleAccess(ctx, login, courseID, RoleParent, g.repo.IsParent)
}

func (g *Guard) roleAccess(
	ctx context.Context,
	login, courseID, role string,
	pred func(context.Context, string, string) (bool, error),
) error {
	if err := g.UserExists(ctx, login); err != nil {
		return err
	}
	if err := g.CourseExists(ctx, courseID); err != nil {
		return err
	}
	ok, err := pred(ctx, login, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking course membership")
	}
	if ok {
		return nil
	}
	admin, err := g.accounts.IsAdmin(ctx, login)
	if err != nil {
		return pkgerrors.Wrap(err, "checking admin flag")
	}
	if admin {
		return nil
	}
	return core.ErrLacksRole(courseID, login, role)
}

// ParentStudentAccess passes when parent observes exactly this student
// in this course (or is a system admin).
func (g *Guard) ParentStudentAccess(ctx context.Context, parent, student, courseID string) error {
	if err := g.UserExists(ctx, parent); err != nil {
		return err
	}
	if err := g.UserExists(ctx, student); err != nil {
		return err
	}
	if err := g.CourseExists(ctx, courseID); err != nil {
		return err
	}
	ok, err := g.repo.IsParentOfStudent(ctx, parent, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking parent link")
	}
	if ok {
		return nil
	}
	admin, err := g.accounts.IsAdmin(ctx, parent)
	if err != nil {
		return pkgerrors.Wrap(err, "checking admin flag")
	}
	if admin {
		return nil
	}
	return core.ErrNoAccessToStudent(courseID, parent, student)
}

// ParentOfAll requires a parent link to every listed student. Admins
// pass outright; otherwise the first missing link fails the whole check,
// naming the student that broke it.
func (g *Guard) ParentOfAll(ctx context.Context, parent string, students []string, courseID string) error {
	if err := g.UserExists(ctx, parent); err != nil {
		return err
	}
	if err := g.CourseExists(ctx, courseID); err != nil {
		return err
	}
	admin, err := g.accounts.IsAdmin(ctx, parent)
	if err != nil {
		return pkgerrors.Wrap(err, "checking admin flag")
	}
	if admin {
		return nil
	}
	for _, student := range students {
		if err := g.UserExists(ctx, student); err != nil {
			return err
		}
		ok, err := g.repo.IsParentOfStudent(ctx, parent, student, courseID)
		if err != nil {
			return pkgerrors.Wrap(err, "checking parent link")
		}
		if !ok {
			return core.ErrNoAccessToStudent(courseID, parent, student)
		}
	}
	return nil
}

// SubmissionExists requires the assignment to exist and the student to
// actually be a student of the course before the submission lookup.
func (g *Guard) SubmissionExists(ctx context.Context, courseID, rawAssID, student string) (int, error) {
	assID, err := g.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return 0, err
	}
	if err = g.StudentAccess(ctx, student, courseID); err != nil {
		return 0, err
	}
	exists, err := g.repo.SubmissionExists(ctx, courseID, assID, student)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "checking submission existence")
	}
	if !exists {
		return 0, core.ErrSubmissionNotFound(courseID, assID, student)
	}
	return assID, nil
}

func (g *Guard) AdminAccess(ctx context.Context, login string) error {
	if err := g.UserExists(ctx, login); err != nil {
		return err
	}
	admin, err := g.accounts.IsAdmin(ctx, login)
	if err != nil {
		return pkgerrors.Wrap(err, "checking admin flag")
	}
	if !admin {
		return core.ErrNotAdmin(login)
	}
	return nil
}

func (g *Guard) FileExists(ctx context.Context, fileID string) error {
	exists, err := g.repo.FileExists(ctx, fileID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking file existence")
	}
	if !exists {
		return core.ErrFileNotFound(fileID)
	}
	return nil
}
