package course_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/course"
	"github.com/trezcool/edhub/services/email"
	"github.com/trezcool/edhub/storage/database/inmem"
	"github.com/trezcool/edhub/tests"
)

const (
	teacher  = "teacher@test.cd"
	teacher2 = "teacher2@test.cd"
	student  = "student@test.cd"
	student2 = "student2@test.cd"
	parent   = "parent@test.cd"
	admin    = "admin@test.cd"
	outsider = "outsider@test.cd"
)

func setup(t *testing.T) (*course.Service, course.Repository, *inmemdb.DB) {
	db := inmemdb.NewDB()
	acctRepo := inmemdb.NewAccountRepository(db)
	repo := inmemdb.NewCourseRepository(db)

	testutil.CreateAccount(t, acctRepo, teacher, "Teacher", "", false)
	testutil.CreateAccount(t, acctRepo, teacher2, "Teacher Too", "", false)
	testutil.CreateAccount(t, acctRepo, student, "Student", "", false)
	testutil.CreateAccount(t, acctRepo, student2, "Student Too", "", false)
	testutil.CreateAccount(t, acctRepo, parent, "Parent", "", false)
	testutil.CreateAccount(t, acctRepo, admin, "Admin", "", true)
	testutil.CreateAccount(t, acctRepo, outsider, "Outsider", "", false)

	svc := course.NewService(
		account.NewDirectory(acctRepo),
		repo,
		testutil.NewTrail(t),
		nil,
		&core.Config{MaxUploadSize: 1 << 20},
	)
	return svc, repo, db
}

// newCourse creates a course taught by teacher, with student enrolled and
// parent observing them.
func newCourse(t *testing.T, svc *course.Service) course.Course {
	t.Helper()
	ctx := context.Background()

	crs, err := svc.Create(ctx, "Physics 101", teacher)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err = svc.InviteStudent(ctx, crs.ID, student, teacher); err != nil {
		t.Fatalf("InviteStudent() failed: %v", err)
	}
	if err = svc.InviteParent(ctx, crs.ID, student, parent, teacher); err != nil {
		t.Fatalf("InviteParent() failed: %v", err)
	}
	return crs
}

func checkKind(t *testing.T, err error, kind string) {
	t.Helper()
	appErr, ok := core.IsError(err)
	if !ok {
		t.Fatalf("error = %v; want kind %v", err, kind)
	}
	if appErr.Kind != kind {
		t.Errorf("kind = %v; want %v", appErr.Kind, kind)
	}
}

func TestService_Create(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Physics", "ghost@test.cd")
	checkKind(t, err, core.KindUserNotFound)

	_, err = svc.Create(ctx, "   ", teacher)
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Create() error = %v; want validation error", err)
	}

	crs, err := svc.Create(ctx, "  Physics 101  ", teacher)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if crs.Title != "Physics 101" {
		t.Errorf("Create() title = %q", crs.Title)
	}
	if isTeacher, _ := repo.IsTeacher(ctx, teacher, crs.ID); !isTeacher {
		t.Error("creator should be the first teacher")
	}
}

func TestService_InfoAndAvailable(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	_, err := svc.Info(ctx, crs.ID, outsider)
	checkKind(t, err, core.KindNoAccessToCourse)

	got, err := svc.Info(ctx, crs.ID, student)
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if got.NumStudents != 1 {
		t.Errorf("Info() students = %d; want 1", got.NumStudents)
	}

	// admins can read any course but only see their own in the listing
	if _, err = svc.Info(ctx, crs.ID, admin); err != nil {
		t.Errorf("Info() as admin failed: %v", err)
	}
	ids, err := svc.Available(ctx, admin)
	if err != nil {
		t.Fatalf("Available() failed: %v", err)
	}
	assert.Empty(t, ids)

	for _, login := range []string{teacher, student, parent} {
		ids, err = svc.Available(ctx, login)
		if err != nil {
			t.Fatalf("Available(%s) failed: %v", login, err)
		}
		assert.Equal(t, []string{crs.ID}, ids)
	}
}

func TestService_RoleOf(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	tests := []struct {
		login string
		want  course.Roles
	}{
		{login: teacher, want: course.Roles{IsTeacher: true}},
		{login: student, want: course.Roles{IsStudent: true}},
		{login: parent, want: course.Roles{IsParent: true}},
		{login: admin, want: course.Roles{IsTeacher: true, IsStudent: true, IsParent: true, IsAdmin: true}},
		{login: outsider, want: course.Roles{}},
	}
	for _, tt := range tests {
		t.Run(tt.login, func(t *testing.T) {
			got, err := svc.RoleOf(ctx, crs.ID, tt.login)
			if err != nil {
				t.Fatalf("RoleOf() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("RoleOf() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestService_Invites_roleExclusivity(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	// only course teachers (or admins) may invite
	err := svc.InviteStudent(ctx, crs.ID, student2, student)
	checkKind(t, err, core.KindLacksRole)
	if err = svc.InviteStudent(ctx, crs.ID, student2, admin); err != nil {
		t.Fatalf("InviteStudent() as admin failed: %v", err)
	}

	// duplicates
	err = svc.InviteStudent(ctx, crs.ID, student, teacher)
	checkKind(t, err, core.KindAlreadyHasRole)
	err = svc.InviteTeacher(ctx, crs.ID, teacher, teacher)
	checkKind(t, err, core.KindAlreadyHasRole)

	// teacher/student exclusivity, both directions
	err = svc.InviteTeacher(ctx, crs.ID, student, teacher)
	checkKind(t, err, core.KindConflictingRole)
	err = svc.InviteStudent(ctx, crs.ID, teacher, teacher)
	checkKind(t, err, core.KindConflictingRole)

	// a parent cannot take either exclusive role, nor can they parent a
	// student while holding one
	err = svc.InviteTeacher(ctx, crs.ID, parent, teacher)
	checkKind(t, err, core.KindConflictingRole)
	err = svc.InviteStudent(ctx, crs.ID, parent, teacher)
	checkKind(t, err, core.KindConflictingRole)
	err = svc.InviteParent(ctx, crs.ID, student, teacher, teacher)
	checkKind(t, err, core.KindConflictingRole)

	// double parent link
	err = svc.InviteParent(ctx, crs.ID, student, parent, teacher)
	checkKind(t, err, core.KindAlreadyParent)

	// parent link requires an enrolled student
	err = svc.InviteParent(ctx, crs.ID, outsider, parent, teacher)
	checkKind(t, err, core.KindLacksRole)

	// unknown users fail before permission checks
	err = svc.InviteStudent(ctx, crs.ID, "ghost@test.cd", outsider)
	checkKind(t, err, core.KindUserNotFound)
	err = svc.InviteStudent(ctx, "nope", student2, teacher)
	checkKind(t, err, core.KindCourseNotFound)
}

func TestService_RemoveTeacher_lastTeacher(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	err := svc.RemoveTeacher(ctx, crs.ID, teacher, teacher)
	checkKind(t, err, core.KindLastTeacher)

	// not even an admin can leave a course teacherless
	err = svc.RemoveTeacher(ctx, crs.ID, teacher, admin)
	checkKind(t, err, core.KindLastTeacher)

	// removing a non-teacher names the missing role
	err = svc.RemoveTeacher(ctx, crs.ID, student, teacher)
	checkKind(t, err, core.KindLacksRole)

	if err = svc.InviteTeacher(ctx, crs.ID, teacher2, teacher); err != nil {
		t.Fatalf("InviteTeacher() failed: %v", err)
	}
	if err = svc.RemoveTeacher(ctx, crs.ID, teacher, teacher2); err != nil {
		t.Fatalf("RemoveTeacher() failed: %v", err)
	}
	if isTeacher, _ := repo.IsTeacher(ctx, teacher, crs.ID); isTeacher {
		t.Error("teacher should have been removed")
	}
}

func TestService_RemoveStudent(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	// neither a fellow student nor a parent may unenroll them
	if err := svc.InviteStudent(ctx, crs.ID, student2, teacher); err != nil {
		t.Fatalf("InviteStudent() failed: %v", err)
	}
	err := svc.RemoveStudent(ctx, crs.ID, student, student2)
	checkKind(t, err, core.KindLacksRole)
	err = svc.RemoveStudent(ctx, crs.ID, student, parent)
	checkKind(t, err, core.KindLacksRole)

	// self-removal is allowed and detaches the parents
	if err = svc.RemoveStudent(ctx, crs.ID, student, student); err != nil {
		t.Fatalf("RemoveStudent() failed: %v", err)
	}
	if isStudent, _ := repo.IsStudent(ctx, student, crs.ID); isStudent {
		t.Error("student should have been removed")
	}
	if isParent, _ := repo.IsParent(ctx, parent, crs.ID); isParent {
		t.Error("parent links should have gone with the student")
	}

	// removal by the teacher
	if err = svc.RemoveStudent(ctx, crs.ID, student2, teacher); err != nil {
		t.Fatalf("RemoveStudent() failed: %v", err)
	}
}

func TestService_RemoveParent(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	err := svc.RemoveParent(ctx, crs.ID, student, parent, student)
	checkKind(t, err, core.KindLacksRole)

	// missing link
	err = svc.RemoveParent(ctx, crs.ID, student, outsider, teacher)
	checkKind(t, err, core.KindNoAccessToStudent)

	// a parent may detach themselves
	if err = svc.RemoveParent(ctx, crs.ID, student, parent, parent); err != nil {
		t.Fatalf("RemoveParent() failed: %v", err)
	}
	if isParent, _ := repo.IsParent(ctx, parent, crs.ID); isParent {
		t.Error("parent should have been detached")
	}
}

func TestService_Rosters(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	_, err := svc.Teachers(ctx, crs.ID, outsider)
	checkKind(t, err, core.KindNoAccessToCourse)

	teachers, err := svc.Teachers(ctx, crs.ID, student)
	if err != nil {
		t.Fatalf("Teachers() failed: %v", err)
	}
	assert.Equal(t, []course.Member{{Login: teacher, Name: "Teacher"}}, teachers)

	students, err := svc.Students(ctx, crs.ID, parent)
	if err != nil {
		t.Fatalf("Students() failed: %v", err)
	}
	assert.Equal(t, []course.Member{{Login: student, Name: "Student"}}, students)

	// parent roster of a student is teacher-only
	_, err = svc.StudentParents(ctx, crs.ID, student, parent)
	checkKind(t, err, core.KindLacksRole)
	parents, err := svc.StudentParents(ctx, crs.ID, student, teacher)
	if err != nil {
		t.Fatalf("StudentParents() failed: %v", err)
	}
	assert.Equal(t, []course.Member{{Login: parent, Name: "Parent"}}, parents)

	// children listing is parent-only (or admin)
	_, err = svc.ParentChildren(ctx, crs.ID, student)
	checkKind(t, err, core.KindLacksRole)
	children, err := svc.ParentChildren(ctx, crs.ID, parent)
	if err != nil {
		t.Fatalf("ParentChildren() failed: %v", err)
	}
	assert.Equal(t, []course.Member{{Login: student, Name: "Student"}}, children)
}

func TestService_Materials(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	_, err := svc.CreateMaterial(ctx, crs.ID, "Notes", "chapter one", student)
	checkKind(t, err, core.KindLacksRole)

	mat, err := svc.CreateMaterial(ctx, crs.ID, "Notes", "chapter one", teacher)
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}

	_, err = svc.GetMaterial(ctx, crs.ID, "lol", student)
	checkKind(t, err, core.KindNotInteger)
	_, err = svc.GetMaterial(ctx, crs.ID, "999", student)
	checkKind(t, err, core.KindCourseItemNotFound)
	_, err = svc.GetMaterial(ctx, crs.ID, "1", outsider)
	checkKind(t, err, core.KindNoAccessToCourse)

	got, err := svc.GetMaterial(ctx, crs.ID, "1", student)
	if err != nil {
		t.Fatalf("GetMaterial() failed: %v", err)
	}
	assert.Equal(t, mat, got)

	err = svc.RemoveMaterial(ctx, crs.ID, "1", student)
	checkKind(t, err, core.KindLacksRole)
	if err = svc.RemoveMaterial(ctx, crs.ID, "1", teacher); err != nil {
		t.Fatalf("RemoveMaterial() failed: %v", err)
	}
	_, err = svc.GetMaterial(ctx, crs.ID, "1", student)
	checkKind(t, err, core.KindCourseItemNotFound)
}

func TestService_Feed(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	mat, err := svc.CreateMaterial(ctx, crs.ID, "Notes", "", teacher)
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}
	ass, err := svc.CreateAssignment(ctx, crs.ID, "Essay", "", teacher)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}

	_, err = svc.Feed(ctx, crs.ID, outsider)
	checkKind(t, err, core.KindNoAccessToCourse)

	feed, err := svc.Feed(ctx, crs.ID, parent)
	if err != nil {
		t.Fatalf("Feed() failed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("Feed() returned %d items; want 2", len(feed))
	}
	// newest first; same-timestamp entries fall back to id order
	assert.Equal(t, ass.ID, feed[0].ID)
	assert.Equal(t, course.PostAssignment, feed[0].Type)
	assert.Equal(t, mat.ID, feed[1].ID)
	assert.Equal(t, course.PostMaterial, feed[1].Type)
}

func TestService_RemoveCourse(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	crs := newCourse(t, svc)

	err := svc.Remove(ctx, crs.ID, student)
	checkKind(t, err, core.KindLacksRole)
	err = svc.Remove(ctx, "nope", teacher)
	checkKind(t, err, core.KindCourseNotFound)

	if err = svc.Remove(ctx, crs.ID, teacher); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if exists, _ := repo.CourseExists(ctx, crs.ID); exists {
		t.Error("course should have been removed")
	}
}

func TestService_invitesNotifyByEmail(t *testing.T) {
	db := inmemdb.NewDB()
	acctRepo := inmemdb.NewAccountRepository(db)

	conf := &core.Config{AppName: "EdHub", MaxUploadSize: 1 << 20}
	svc := course.NewService(
		account.NewDirectory(acctRepo),
		inmemdb.NewCourseRepository(db),
		testutil.NewTrail(t),
		emailsvc.NewConsoleServiceMock(conf),
		conf,
	)
	testutil.CreateAccount(t, acctRepo, teacher, "Teacher", "", false)
	testutil.CreateAccount(t, acctRepo, student, "Student", "", false)

	ctx := context.Background()
	crs, err := svc.Create(ctx, "Physics 101", teacher)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	emailsvc.SentMessages = nil // reset
	if err = svc.InviteStudent(ctx, crs.ID, student, teacher); err != nil {
		t.Fatalf("InviteStudent() failed: %v", err)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if msg.To[0].Address != student {
		t.Errorf("To = %v; want %v", msg.To[0].Address, student)
	}
	if !strings.Contains(msg.BodyStr, crs.ID) {
		t.Errorf("body does not mention the course: %q", msg.BodyStr)
	}
}
