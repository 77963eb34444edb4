package audit

import (
	"context"
	"math/rand"
	"time"

	"github.com/trezcool/edhub/core"
)

// Activity tags.
const (
	TagUserAdd        = "user.add"
	TagUserChangePwd  = "user.chpw"
	TagUserDel        = "user.del"
	TagAdminAdd       = "admin.add"
	TagCourseAdd      = "course.add"
	TagCourseDel      = "course.del"
	TagTeacherAdd     = "teacher.add"
	TagTeacherDel     = "teacher.del"
	TagStudentAdd     = "student.add"
	TagStudentDel     = "student.del"
	TagParentAdd      = "parent.add"
	TagParentDel      = "parent.del"
	TagMaterialAdd    = "material.add"
	TagMaterialDel    = "material.del"
	TagAssignmentAdd  = "assignment.add"
	TagAssignmentDel  = "assignment.del"
	TagSubmissionAdd  = "submission.add"
	TagSubmissionMark = "submission.grade"
	TagFileAdd        = "file.add"
)

const (
	// roughly 1 call in 100 also prunes old rows
	cleanupProbability = 0.01
	retention          = 7 * 24 * time.Hour
)

type Repository interface {
	InsertLog(ctx context.Context, at time.Time, tag, msg string) error
	DeleteLogsBefore(ctx context.Context, t time.Time) error
}

// Trail records activity rows. Writes are best-effort: a failing insert
// or prune is reported to the app logger and never surfaces to the
// caller's operation.
type Trail struct {
	repo Repository
	log  core.Logger

	randFloat func() float64 // mockable
	nowFunc   func() time.Time
}

func NewTrail(repo Repository, logger core.Logger) *Trail {
	return &Trail{
		repo:      repo,
		log:       logger,
		randFloat: rand.Float64,
		nowFunc:   time.Now,
	}
}

func (t *Trail) Log(ctx context.Context, tag, msg string) {
	now := t.nowFunc().UTC()
	if err := t.repo.InsertLog(ctx, now, tag, msg); err != nil {
		t.log.Debug("audit: inserting log row", err)
		return
	}
	if t.randFloat() < cleanupProbability {
		if err := t.repo.DeleteLogsBefore(ctx, now.Add(-retention)); err != nil {
			t.log.Debug("audit: pruning log rows", err)
		}
	}
}
