package course

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/audit"
)

// Submit records a student's answer to an assignment. Submitting again
// replaces the comment, unless a grade has already been recorded: graded
// work is frozen.
func (svc *Service) Submit(ctx context.Context, courseID, rawAssID, student, comment string) (Submission, error) {
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return Submission{}, err
	}
	if err = svc.guard.StudentAccess(ctx, student, courseID); err != nil {
		return Submission{}, err
	}

	exists, err := svc.repo.SubmissionExists(ctx, courseID, assID, student)
	if err != nil {
		return Submission{}, pkgerrors.Wrap(err, "checking submission")
	}
	if exists {
		sub, err := svc.repo.GetSubmission(ctx, courseID, assID, student)
		if err != nil {
			return Submission{}, pkgerrors.Wrap(err, "getting submission")
		}
		if sub.Grade.Valid {
			return Submission{}, core.ErrGradedSubmissionLocked(courseID, assID, student)
		}
		if err = svc.repo.UpdateSubmissionComment(ctx, courseID, assID, student, comment); err != nil {
			return Submission{}, pkgerrors.Wrap(err, "updating submission")
		}
	} else {
		if err = svc.repo.CreateSubmission(ctx, courseID, assID, student, comment); err != nil {
			return Submission{}, pkgerrors.Wrap(err, "creating submission")
		}
	}
	svc.trail.Log(ctx, audit.TagSubmissionAdd,
		fmt.Sprintf("Student %s submitted the assignment %d in %s", student, assID, courseID))

	sub, err := svc.repo.GetSubmission(ctx, courseID, assID, student)
	if err != nil {
		return Submission{}, pkgerrors.Wrap(err, "getting submission")
	}
	return sub, nil
}

// GetSubmission returns one student's submission. Visible to the course
// teachers, to the student who owns it and to that student's parents.
func (svc *Service) GetSubmission(ctx context.Context, courseID, rawAssID, student, requester string) (Submission, error) {
	if err := svc.guardSubmissionAccess(ctx, courseID, student, requester); err != nil {
		return Submission{}, err
	}
	assID, err := svc.guard.SubmissionExists(ctx, courseID, rawAssID, student)
	if err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.GetSubmission(ctx, courseID, assID, student)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Submission{}, core.ErrSubmissionNotFound(courseID, assID, student)
		}
		return Submission{}, pkgerrors.Wrap(err, "getting submission")
	}
	return sub, nil
}

// Submissions lists every submission for an assignment. Teachers only.
func (svc *Service) Submissions(ctx context.Context, courseID, rawAssID, requester string) ([]Submission, error) {
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return nil, err
	}
	if err = svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return nil, err
	}
	subs, err := svc.repo.QuerySubmissions(ctx, courseID, assID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

// Grade records a grade on a submission. Grading is idempotent: grading
// again overwrites the previous value and grader.
func (svc *Service) Grade(ctx context.Context, courseID, rawAssID, student, rawGrade, grader string) (Submission, error) {
	if err := svc.guard.TeacherAccess(ctx, grader, courseID); err != nil {
		return Submission{}, err
	}
	assID, err := svc.guard.SubmissionExists(ctx, courseID, rawAssID, student)
	if err != nil {
		return Submission{}, err
	}
	grade, err := strconv.Atoi(rawGrade)
	if err != nil {
		return Submission{}, core.ErrNotInteger("grade", rawGrade)
	}
	if err = svc.repo.GradeSubmission(ctx, courseID, assID, student, grade, grader); err != nil {
		return Submission{}, pkgerrors.Wrap(err, "grading submission")
	}
	svc.trail.Log(ctx, audit.TagSubmissionMark,
		fmt.Sprintf("Teacher %s graded the submission of %s for the assignment %d in %s", grader, student, assID, courseID))

	sub, err := svc.repo.GetSubmission(ctx, courseID, assID, student)
	if err != nil {
		return Submission{}, pkgerrors.Wrap(err, "getting submission")
	}
	return sub, nil
}

// guardSubmissionAccess allows the course teachers and admins, the
// student who owns the submission, and that student's parents.
func (svc *Service) guardSubmissionAccess(ctx context.Context, courseID, student, requester string) error {
	if requester == student {
		return svc.guard.StudentAccess(ctx, requester, courseID)
	}
	allowed, err := Check(svc.guard.TeacherAccess(ctx, requester, courseID))
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	allowed, err = svc.repo.IsParentOfStudent(ctx, requester, student, courseID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking parent link")
	}
	if allowed {
		return nil
	}
	return core.ErrNoAccessToSubmission(courseID, student, requester)
}
