package course

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/audit"
)

type Service struct {
	repo    Repository
	guard   *Guard
	trail   *audit.Trail
	mailSvc core.EmailService

	maxUploadSize int64
}

func NewService(
	accounts AccountDirectory,
	repo Repository,
	trail *audit.Trail,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	return &Service{
		repo:          repo,
		guard:         NewGuard(accounts, repo),
		trail:         trail,
		mailSvc:       mailSvc,
		maxUploadSize: conf.MaxUploadSize,
	}
}

// Guard exposes the authorization engine for callers that only need
// predicate checks (e.g. the transport layer's role endpoint).
func (svc *Service) Guard() *Guard { return svc.guard }

// Create opens a new course with the creator as its first teacher; the
// two inserts are one transaction so no course ever exists teacherless.
func (svc *Service) Create(ctx context.Context, title, creator string) (Course, error) {
	if err := svc.guard.UserExists(ctx, creator); err != nil {
		return Course{}, err
	}
	title = core.CleanString(title)
	if title == "" {
		return Course{}, core.NewValidationError(errors.New("course title is required"),
			core.FieldError{Field: "title", Error: "this field is required"})
	}
	crs, err := svc.repo.CreateCourse(ctx, title, creator)
	if err != nil {
		return Course{}, pkgerrors.Wrap(err, "creating course")
	}
	svc.trail.Log(ctx, audit.TagCourseAdd, fmt.Sprintf("User %s created the course %s", creator, crs.ID))
	return crs, nil
}

// Remove deletes a course and everything scoped to it: memberships,
// materials, assignments, submissions, attachments and their blobs.
func (svc *Service) Remove(ctx context.Context, courseID, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	if err := svc.repo.RemoveCourse(ctx, courseID); err != nil {
		return pkgerrors.Wrap(err, "removing course")
	}
	svc.trail.Log(ctx, audit.TagCourseDel, fmt.Sprintf("User %s removed the course %s", requester, courseID))
	return nil
}

func (svc *Service) Info(ctx context.Context, courseID, login string) (Course, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return Course{}, err
	}
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Course{}, core.ErrCourseNotFound(courseID)
		}
		return Course{}, pkgerrors.Wrap(err, "getting course")
	}
	return crs, nil
}

// Feed returns the course's materials and assignments merged, newest first.
func (svc *Service) Feed(ctx context.Context, courseID, login string) ([]FeedItem, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return nil, err
	}
	feed, err := svc.repo.GetFeed(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting course feed")
	}
	return feed, nil
}

// Available lists the courses where the user holds any role. The admin
// flag is deliberately ignored here: admins see their own courses, not
// every course in the system.
func (svc *Service) Available(ctx context.Context, login string) ([]string, error) {
	if err := svc.guard.UserExists(ctx, login); err != nil {
		return nil, err
	}
	ids, err := svc.repo.AvailableCourses(ctx, login)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying available courses")
	}
	return ids, nil
}

// RoleOf reports the caller's roles within a course. Each flag follows
// the corresponding access predicate, so system admins read as having
// every role.
func (svc *Service) RoleOf(ctx context.Context, courseID, login string) (Roles, error) {
	var roles Roles
	var err error
	if roles.IsTeacher, err = Check(svc.guard.TeacherAccess(ctx, login, courseID)); err != nil {
		return Roles{}, err
	}
	if roles.IsStudent, err = Check(svc.guard.StudentAccess(ctx, login, courseID)); err != nil {
		return Roles{}, err
	}
	if roles.IsParent, err = Check(svc.guard.ParentAccess(ctx, login, courseID)); err != nil {
		return Roles{}, err
	}
	if roles.IsAdmin, err = Check(svc.guard.AdminAccess(ctx, login)); err != nil {
		return Roles{}, err
	}
	return roles, nil
}

// Membership management.
//
// Invites enforce role exclusivity within the course: a user holds at
// most one of {teacher, student}, and a parent can be neither. Duplicate
// invites are rejected rather than silently succeeding. A race between
// two identical invites is settled by the store's uniqueness constraint
// and surfaces as the same "already has role" failure.

func (svc *Service) InviteTeacher(ctx context.Context, courseID, newTeacher, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, newTeacher); err != nil {
		return err
	}
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	if err := svc.assertNoRole(ctx, courseID, newTeacher, RoleTeacher); err != nil {
		return err
	}
	if err := svc.repo.AddTeacher(ctx, newTeacher, courseID); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return core.ErrAlreadyHasRole(courseID, newTeacher, RoleTeacher)
		}
		return pkgerrors.Wrap(err, "adding teacher")
	}
	svc.trail.Log(ctx, audit.TagTeacherAdd,
		fmt.Sprintf("Teacher %s invited a teacher %s to %s", requester, newTeacher, courseID))
	svc.sendInviteMail(newTeacher, courseID, RoleTeacher)
	return nil
}

// RemoveTeacher removes a teacher unless they are the last one: a course
// must never be left teacherless, no matter who asks.
func (svc *Service) RemoveTeacher(ctx context.Context, courseID, target, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, target); err != nil {
		return err
	}
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	isTeacher, err := svc.repo.IsTeacher(ctx, target, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking teacher membership")
	}
	if !isTeacher {
		return core.ErrLacksRole(courseID, target, RoleTeacher)
	}
	n, err := svc.repo.CountTeachers(ctx, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "counting teachers")
	}
	if n <= 1 {
		return core.ErrLastTeacher(courseID, target)
	}
	if err = svc.repo.RemoveTeacher(ctx, target, courseID); err != nil {
		return pkgerrors.Wrap(err, "removing teacher")
	}
	svc.trail.Log(ctx, audit.TagTeacherDel,
		fmt.Sprintf("User %s removed the teacher %s from %s", requester, target, courseID))
	return nil
}

func (svc *Service) InviteStudent(ctx context.Context, courseID, student, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, student); err != nil {
		return err
	}
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	if err := svc.assertNoRole(ctx, courseID, student, RoleStudent); err != nil {
		return err
	}
	if err := svc.repo.AddStudent(ctx, student, courseID); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return core.ErrAlreadyHasRole(courseID, student, RoleStudent)
		}
		return pkgerrors.Wrap(err, "adding student")
	}
	svc.trail.Log(ctx, audit.TagStudentAdd,
		fmt.Sprintf("Teacher %s invited a student %s to %s", requester, student, courseID))
	svc.sendInviteMail(student, courseID, RoleStudent)
	return nil
}

// RemoveStudent unenrolls a student. Teachers and admins may remove any
// student; a student may remove themselves. The student's parent links
// in this course go with them, atomically.
func (svc *Service) RemoveStudent(ctx context.Context, courseID, student, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, student); err != nil {
		return err
	}

	allowed, err := Check(svc.guard.TeacherAccess(ctx, requester, courseID))
	if err != nil {
		return err
	}
	if !allowed && requester == student {
		allowed, err = svc.repo.IsStudent(ctx, requester, courseID)
		if err != nil {
			return pkgerrors.Wrap(err, "checking student membership")
		}
	}
	if !allowed {
		return core.ErrLacksRole(courseID, requester, RoleTeacher)
	}

	isStudent, err := svc.repo.IsStudent(ctx, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking student membership")
	}
	if !isStudent {
		return core.ErrLacksRole(courseID, student, RoleStudent)
	}
	if err = svc.repo.RemoveStudent(ctx, student, courseID); err != nil {
		return pkgerrors.Wrap(err, "removing student")
	}
	svc.trail.Log(ctx, audit.TagStudentDel,
		fmt.Sprintf("User %s removed the student %s from %s", requester, student, courseID))
	return nil
}

func (svc *Service) InviteParent(ctx context.Context, courseID, student, parent, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, student); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, parent); err != nil {
		return err
	}
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}

	isStudent, err := svc.repo.IsStudent(ctx, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking student membership")
	}
	if !isStudent {
		return core.ErrLacksRole(courseID, student, RoleStudent)
	}

	linked, err := svc.repo.IsParentOfStudent(ctx, parent, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking parent link")
	}
	if linked {
		return core.ErrAlreadyParent(courseID, parent, student)
	}
	if err = svc.assertNoExclusiveRole(ctx, courseID, parent, RoleParent); err != nil {
		return err
	}

	if err = svc.repo.AddParent(ctx, parent, student, courseID); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return core.ErrAlreadyParent(courseID, parent, student)
		}
		return pkgerrors.Wrap(err, "adding parent")
	}
	svc.trail.Log(ctx, audit.TagParentAdd,
		fmt.Sprintf("Teacher %s linked the parent %s to the student %s in %s", requester, parent, student, courseID))
	svc.sendInviteMail(parent, courseID, RoleParent)
	return nil
}

// RemoveParent detaches a parent from one student. Teachers and admins
// may detach anyone; a parent may detach themselves.
func (svc *Service) RemoveParent(ctx context.Context, courseID, student, parent, requester string) error {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, student); err != nil {
		return err
	}
	if err := svc.guard.UserExists(ctx, parent); err != nil {
		return err
	}

	allowed, err := Check(svc.guard.TeacherAccess(ctx, requester, courseID))
	if err != nil {
		return err
	}
	if !allowed {
		allowed = requester == parent
	}
	if !allowed {
		return core.ErrLacksRole(courseID, requester, RoleTeacher)
	}

	linked, err := svc.repo.IsParentOfStudent(ctx, parent, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking parent link")
	}
	if !linked {
		return core.ErrNoAccessToStudent(courseID, parent, student)
	}
	if err = svc.repo.RemoveParent(ctx, parent, student, courseID); err != nil {
		return pkgerrors.Wrap(err, "removing parent")
	}
	svc.trail.Log(ctx, audit.TagParentDel,
		fmt.Sprintf("User %s detached the parent %s from the student %s in %s", requester, parent, student, courseID))
	return nil
}

// Roster queries.

func (svc *Service) Teachers(ctx context.Context, courseID, login string) ([]Member, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryTeachers(ctx, courseID)
}

func (svc *Service) Students(ctx context.Context, courseID, login string) ([]Member, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, courseID)
}

func (svc *Service) StudentParents(ctx context.Context, courseID, student, requester string) ([]Member, error) {
	if err := svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return nil, err
	}
	if err := svc.guard.StudentAccess(ctx, student, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudentParents(ctx, courseID, student)
}

func (svc *Service) ParentChildren(ctx context.Context, courseID, parent string) ([]Member, error) {
	if err := svc.guard.ParentAccess(ctx, parent, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryParentChildren(ctx, courseID, parent)
}

// Materials & assignments.

func (svc *Service) CreateMaterial(ctx context.Context, courseID, title, description, author string) (Material, error) {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return Material{}, err
	}
	if err := svc.guard.TeacherAccess(ctx, author, courseID); err != nil {
		return Material{}, err
	}
	mat, err := svc.repo.CreateMaterial(ctx, courseID, core.CleanString(title), description, author)
	if err != nil {
		return Material{}, pkgerrors.Wrap(err, "creating material")
	}
	svc.trail.Log(ctx, audit.TagMaterialAdd,
		fmt.Sprintf("Teacher %s added the material %d to %s", author, mat.ID, courseID))
	return mat, nil
}

func (svc *Service) GetMaterial(ctx context.Context, courseID, rawMatID, login string) (Material, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return Material{}, err
	}
	matID, err := svc.guard.MaterialExists(ctx, courseID, rawMatID)
	if err != nil {
		return Material{}, err
	}
	mat, err := svc.repo.GetMaterial(ctx, courseID, matID)
	if err != nil {
		return Material{}, pkgerrors.Wrap(err, "getting material")
	}
	return mat, nil
}

func (svc *Service) RemoveMaterial(ctx context.Context, courseID, rawMatID, requester string) error {
	matID, err := svc.guard.MaterialExists(ctx, courseID, rawMatID)
	if err != nil {
		return err
	}
	if err = svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	if err = svc.repo.RemoveMaterial(ctx, courseID, matID); err != nil {
		return pkgerrors.Wrap(err, "removing material")
	}
	svc.trail.Log(ctx, audit.TagMaterialDel,
		fmt.Sprintf("Teacher %s removed the material %d from %s", requester, matID, courseID))
	return nil
}

func (svc *Service) CreateAssignment(ctx context.Context, courseID, title, description, author string) (Assignment, error) {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return Assignment{}, err
	}
	if err := svc.guard.TeacherAccess(ctx, author, courseID); err != nil {
		return Assignment{}, err
	}
	ass, err := svc.repo.CreateAssignment(ctx, courseID, core.CleanString(title), description, author)
	if err != nil {
		return Assignment{}, pkgerrors.Wrap(err, "creating assignment")
	}
	svc.trail.Log(ctx, audit.TagAssignmentAdd,
		fmt.Sprintf("Teacher %s added the assignment %d to %s", author, ass.ID, courseID))
	return ass, nil
}

func (svc *Service) GetAssignment(ctx context.Context, courseID, rawAssID, login string) (Assignment, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return Assignment{}, err
	}
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return Assignment{}, err
	}
	ass, err := svc.repo.GetAssignment(ctx, courseID, assID)
	if err != nil {
		return Assignment{}, pkgerrors.Wrap(err, "getting assignment")
	}
	return ass, nil
}

func (svc *Service) RemoveAssignment(ctx context.Context, courseID, rawAssID, requester string) error {
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return err
	}
	if err = svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return err
	}
	if err = svc.repo.RemoveAssignment(ctx, courseID, assID); err != nil {
		return pkgerrors.Wrap(err, "removing assignment")
	}
	svc.trail.Log(ctx, audit.TagAssignmentDel,
		fmt.Sprintf("Teacher %s removed the assignment %d from %s", requester, assID, courseID))
	return nil
}

// assertNoRole rejects an invite when the target already holds the
// wanted role, or any role exclusive with it.
func (svc *Service) assertNoRole(ctx context.Context, courseID, login, wanted string) error {
	switch wanted {
	case RoleTeacher:
		if held, err := svc.repo.IsTeacher(ctx, login, courseID); err != nil {
			return pkgerrors.Wrap(err, "checking teacher membership")
		} else if held {
			return core.ErrAlreadyHasRole(courseID, login, RoleTeacher)
		}
	case RoleStudent:
		if held, err := svc.repo.IsStudent(ctx, login, courseID); err != nil {
			return pkgerrors.Wrap(err, "checking student membership")
		} else if held {
			return core.ErrAlreadyHasRole(courseID, login, RoleStudent)
		}
	}
	return svc.assertNoExclusiveRole(ctx, courseID, login, wanted)
}

// assertNoExclusiveRole checks the roles that conflict with wanted, each
// failure naming the specific role the target already holds.
func (svc *Service) assertNoExclusiveRole(ctx context.Context, courseID, login, wanted string) error {
	if wanted != RoleTeacher {
		if held, err := svc.repo.IsTeacher(ctx, login, courseID); err != nil {
			return pkgerrors.Wrap(err, "checking teacher membership")
		} else if held {
			return core.ErrConflictingRole(courseID, login, RoleTeacher, wanted)
		}
	}
	if wanted != RoleStudent {
		if held, err := svc.repo.IsStudent(ctx, login, courseID); err != nil {
			return pkgerrors.Wrap(err, "checking student membership")
		} else if held {
			return core.ErrConflictingRole(courseID, login, RoleStudent, wanted)
		}
	}
	if wanted != RoleParent {
		if held, err := svc.repo.IsParent(ctx, login, courseID); err != nil {
			return pkgerrors.Wrap(err, "checking parent membership")
		} else if held {
			return core.ErrConflictingRole(courseID, login, RoleParent, wanted)
		}
	}
	return nil
}

// sendInviteMail notifies the invitee. Best-effort: the mail service
// logs its own failures and the invite never depends on it.
func (svc *Service) sendInviteMail(login, courseID, role string) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: login}},
		Subject: fmt.Sprintf("You have been invited to a course as a %s", role),
		BodyStr: fmt.Sprintf("You now have the %s role in the course %s.", role, courseID),
	})
}
