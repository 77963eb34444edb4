package course

import (
	"context"
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/audit"
)

// Attachment use-cases. Uploads follow the write rules of their owner:
// teachers attach to materials and assignments, students to their own
// ungraded submissions. Downloads follow the read rules: anyone in the
// course for item attachments, the submission's usual audience for
// submission attachments.

func (svc *Service) AttachToMaterial(ctx context.Context, courseID, rawMatID, requester, filename string, r io.Reader) (Attachment, error) {
	matID, err := svc.guard.MaterialExists(ctx, courseID, rawMatID)
	if err != nil {
		return Attachment{}, err
	}
	if err = svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return Attachment{}, err
	}
	return svc.addAttachment(ctx, MaterialOwner(courseID, matID), requester, filename, r)
}

func (svc *Service) MaterialAttachments(ctx context.Context, courseID, rawMatID, login string) ([]Attachment, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return nil, err
	}
	matID, err := svc.guard.MaterialExists(ctx, courseID, rawMatID)
	if err != nil {
		return nil, err
	}
	return svc.queryAttachments(ctx, MaterialOwner(courseID, matID))
}

func (svc *Service) DownloadMaterialAttachment(ctx context.Context, courseID, rawMatID, fileID, login string) (Attachment, []byte, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return Attachment{}, nil, err
	}
	matID, err := svc.guard.MaterialExists(ctx, courseID, rawMatID)
	if err != nil {
		return Attachment{}, nil, err
	}
	return svc.download(ctx, MaterialOwner(courseID, matID), fileID)
}

func (svc *Service) AttachToAssignment(ctx context.Context, courseID, rawAssID, requester, filename string, r io.Reader) (Attachment, error) {
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return Attachment{}, err
	}
	if err = svc.guard.TeacherAccess(ctx, requester, courseID); err != nil {
		return Attachment{}, err
	}
	return svc.addAttachment(ctx, AssignmentOwner(courseID, assID), requester, filename, r)
}

func (svc *Service) AssignmentAttachments(ctx context.Context, courseID, rawAssID, login string) ([]Attachment, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return nil, err
	}
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return nil, err
	}
	return svc.queryAttachments(ctx, AssignmentOwner(courseID, assID))
}

func (svc *Service) DownloadAssignmentAttachment(ctx context.Context, courseID, rawAssID, fileID, login string) (Attachment, []byte, error) {
	if err := svc.guard.CourseAccess(ctx, login, courseID); err != nil {
		return Attachment{}, nil, err
	}
	assID, err := svc.guard.AssignmentExists(ctx, courseID, rawAssID)
	if err != nil {
		return Attachment{}, nil, err
	}
	return svc.download(ctx, AssignmentOwner(courseID, assID), fileID)
}

// AttachToSubmission lets the owning student (or an admin) add a file to
// their submission, as long as it has not been graded yet.
func (svc *Service) AttachToSubmission(ctx context.Context, courseID, rawAssID, student, requester, filename string, r io.Reader) (Attachment, error) {
	if requester != student {
		if err := svc.guard.AdminAccess(ctx, requester); err != nil {
			return Attachment{}, err
		}
	}
	assID, err := svc.guard.SubmissionExists(ctx, courseID, rawAssID, student)
	if err != nil {
		return Attachment{}, err
	}
	sub, err := svc.repo.GetSubmission(ctx, courseID, assID, student)
	if err != nil {
		return Attachment{}, pkgerrors.Wrap(err, "getting submission")
	}
	if sub.Grade.Valid {
		return Attachment{}, core.ErrGradedSubmissionLocked(courseID, assID, student)
	}
	return svc.addAttachment(ctx, SubmissionOwner(courseID, assID, student), requester, filename, r)
}

func (svc *Service) SubmissionAttachments(ctx context.Context, courseID, rawAssID, student, requester string) ([]Attachment, error) {
	if err := svc.guardSubmissionAccess(ctx, courseID, student, requester); err != nil {
		return nil, err
	}
	assID, err := svc.guard.SubmissionExists(ctx, courseID, rawAssID, student)
	if err != nil {
		return nil, err
	}
	return svc.queryAttachments(ctx, SubmissionOwner(courseID, assID, student))
}

func (svc *Service) DownloadSubmissionAttachment(ctx context.Context, courseID, rawAssID, student, fileID, requester string) (Attachment, []byte, error) {
	if err := svc.guardSubmissionAccess(ctx, courseID, student, requester); err != nil {
		return Attachment{}, nil, err
	}
	assID, err := svc.guard.SubmissionExists(ctx, courseID, rawAssID, student)
	if err != nil {
		return Attachment{}, nil, err
	}
	return svc.download(ctx, SubmissionOwner(courseID, assID, student), fileID)
}

func (svc *Service) addAttachment(ctx context.Context, owner AttachmentOwner, requester, filename string, r io.Reader) (Attachment, error) {
	content, err := readUpload(r, svc.maxUploadSize)
	if err != nil {
		return Attachment{}, err
	}
	att, err := svc.repo.AddAttachment(ctx, owner, filename, content)
	if err != nil {
		return Attachment{}, pkgerrors.Wrap(err, "adding attachment")
	}
	svc.trail.Log(ctx, audit.TagFileAdd,
		fmt.Sprintf("User %s attached the file %s (%s) to the %s %d in %s",
			requester, att.FileID, filename, owner.Kind, owner.ItemID, owner.CourseID))
	return att, nil
}

func (svc *Service) queryAttachments(ctx context.Context, owner AttachmentOwner) ([]Attachment, error) {
	atts, err := svc.repo.QueryAttachments(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying attachments")
	}
	return atts, nil
}

func (svc *Service) download(ctx context.Context, owner AttachmentOwner, fileID string) (Attachment, []byte, error) {
	att, err := svc.repo.GetAttachment(ctx, owner, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attachment{}, nil, core.ErrFileNotFound(fileID)
		}
		return Attachment{}, nil, pkgerrors.Wrap(err, "getting attachment")
	}
	content, err := svc.repo.GetFileContent(ctx, att.FileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attachment{}, nil, core.ErrFileNotFound(fileID)
		}
		return Attachment{}, nil, pkgerrors.Wrap(err, "getting file content")
	}
	return att, content, nil
}
