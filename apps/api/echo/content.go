package echoapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/edhub/core/course"
)

type contentApi struct {
	opts *Options
}

// registerContentAPI hangs the course-scoped content routes off the
// course detail group.
func registerContentAPI(dg *echo.Group, opts *Options) {
	api := contentApi{opts: opts}

	// the margin past the file cap leaves room for the multipart framing
	uploadLimit := middleware.BodyLimit(strconv.FormatInt(opts.Conf.MaxUploadSize+64<<10, 10))

	mg := dg.Group("/materials")
	mg.POST("", api.createMaterial)
	mg.GET("/:matID", api.retrieveMaterial)
	mg.DELETE("/:matID", api.destroyMaterial)
	mg.POST("/:matID/files", api.attachToMaterial, uploadLimit)
	mg.GET("/:matID/files", api.materialFiles)
	mg.GET("/:matID/files/:fileID", api.downloadMaterialFile)

	ag := dg.Group("/assignments")
	ag.POST("", api.createAssignment)
	ag.GET("/:assID", api.retrieveAssignment)
	ag.DELETE("/:assID", api.destroyAssignment)
	ag.POST("/:assID/files", api.attachToAssignment, uploadLimit)
	ag.GET("/:assID/files", api.assignmentFiles)
	ag.GET("/:assID/files/:fileID", api.downloadAssignmentFile)

	sg := ag.Group("/:assID/submissions")
	sg.PUT("", api.submit)
	sg.GET("", api.querySubmissions)
	sg.GET("/:student", api.retrieveSubmission)
	sg.POST("/:student/grade", api.grade)
	sg.POST("/:student/files", api.attachToSubmission, uploadLimit)
	sg.GET("/:student/files", api.submissionFiles)
	sg.GET("/:student/files/:fileID", api.downloadSubmissionFile)

	dg.GET("/grades.csv", api.gradesCSV)
}

// Materials

func (api *contentApi) createMaterial(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data postRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to postRequest")
	}
	mat, err := api.opts.CourseSvc.CreateMaterial(
		ctx.Request().Context(), ctx.Param("courseID"), data.Title, data.Description, claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, mat)
}

func (api *contentApi) retrieveMaterial(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	mat, err := api.opts.CourseSvc.GetMaterial(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("matID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mat)
}

func (api *contentApi) destroyMaterial(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.RemoveMaterial(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("matID"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Assignments

func (api *contentApi) createAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data postRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to postRequest")
	}
	ass, err := api.opts.CourseSvc.CreateAssignment(
		ctx.Request().Context(), ctx.Param("courseID"), data.Title, data.Description, claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ass)
}

func (api *contentApi) retrieveAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ass, err := api.opts.CourseSvc.GetAssignment(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ass)
}

func (api *contentApi) destroyAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.RemoveAssignment(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Submissions

func (api *contentApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data submitRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to submitRequest")
	}
	sub, err := api.opts.CourseSvc.Submit(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login, data.Comment)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *contentApi) querySubmissions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	subs, err := api.opts.CourseSvc.Submissions(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *contentApi) retrieveSubmission(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sub, err := api.opts.CourseSvc.GetSubmission(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("student"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *contentApi) grade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data gradeRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to gradeRequest")
	}
	sub, err := api.opts.CourseSvc.Grade(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("student"), data.Grade, claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

// Attachments

func (api *contentApi) attachToMaterial(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.upload(ctx, func(filename string, src io.Reader) (course.Attachment, error) {
		return api.opts.CourseSvc.AttachToMaterial(
			ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("matID"), claims.Login, filename, src)
	})
}

func (api *contentApi) materialFiles(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	atts, err := api.opts.CourseSvc.MaterialAttachments(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("matID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *contentApi) downloadMaterialFile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	att, content, err := api.opts.CourseSvc.DownloadMaterialAttachment(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("matID"), ctx.Param("fileID"), claims.Login)
	if err != nil {
		return err
	}
	return serveFile(ctx, att, content)
}

func (api *contentApi) attachToAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.upload(ctx, func(filename string, src io.Reader) (course.Attachment, error) {
		return api.opts.CourseSvc.AttachToAssignment(
			ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login, filename, src)
	})
}

func (api *contentApi) assignmentFiles(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	atts, err := api.opts.CourseSvc.AssignmentAttachments(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *contentApi) downloadAssignmentFile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	att, content, err := api.opts.CourseSvc.DownloadAssignmentAttachment(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("fileID"), claims.Login)
	if err != nil {
		return err
	}
	return serveFile(ctx, att, content)
}

func (api *contentApi) attachToSubmission(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.upload(ctx, func(filename string, src io.Reader) (course.Attachment, error) {
		return api.opts.CourseSvc.AttachToSubmission(
			ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("student"), claims.Login, filename, src)
	})
}

func (api *contentApi) submissionFiles(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	atts, err := api.opts.CourseSvc.SubmissionAttachments(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("student"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *contentApi) downloadSubmissionFile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	att, content, err := api.opts.CourseSvc.DownloadSubmissionAttachment(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("assID"), ctx.Param("student"), ctx.Param("fileID"), claims.Login)
	if err != nil {
		return err
	}
	return serveFile(ctx, att, content)
}

func (api *contentApi) upload(ctx echo.Context, attach func(string, io.Reader) (course.Attachment, error)) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return errors.Wrap(err, "reading multipart form")
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	att, err := attach(fh.Filename, src)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, att)
}

// Grades

func (api *contentApi) gradesCSV(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	table, err := api.opts.CourseSvc.GradeTable(
		ctx.Request().Context(), ctx.Param("courseID"), claims.Login, queryList(ctx, "assignments"))
	if err != nil {
		return err
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="grades.csv"`)
	res.WriteHeader(http.StatusOK)
	return table.WriteCSV(res)
}

func serveFile(ctx echo.Context, att course.Attachment, content []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", att.Filename))
	return ctx.Blob(http.StatusOK, echo.MIMEOctetStream, content)
}
