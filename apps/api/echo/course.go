package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type courseApi struct {
	opts *Options
}

func registerCourseAPI(g *echo.Group, jwt, authed echo.MiddlewareFunc, opts *Options) {
	api := courseApi{opts: opts}

	cg := g.Group("/courses", jwt, authed)
	cg.POST("", api.create)
	cg.GET("", api.available)

	dg := cg.Group("/:courseID")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.GET("/feed", api.feed)
	dg.GET("/role", api.role)

	dg.GET("/teachers", api.teachers)
	dg.POST("/teachers", api.inviteTeacher)
	dg.DELETE("/teachers/:login", api.removeTeacher)

	dg.GET("/students", api.students)
	dg.POST("/students", api.inviteStudent)
	dg.DELETE("/students/:login", api.removeStudent)

	dg.GET("/students/:student/parents", api.studentParents)
	dg.POST("/students/:student/parents", api.inviteParent)
	dg.DELETE("/students/:student/parents/:login", api.removeParent)
	dg.GET("/children", api.children)

	registerContentAPI(dg, api.opts)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data createCourseRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to createCourseRequest")
	}

	crs, err := api.opts.CourseSvc.Create(ctx.Request().Context(), data.Title, claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) available(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ids, err := api.opts.CourseSvc.Available(ctx.Request().Context(), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": ids})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	crs, err := api.opts.CourseSvc.Info(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.Remove(ctx.Request().Context(), ctx.Param("courseID"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) feed(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	feed, err := api.opts.CourseSvc.Feed(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, feed)
}

func (api *courseApi) role(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	roles, err := api.opts.CourseSvc.RoleOf(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *courseApi) teachers(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	members, err := api.opts.CourseSvc.Teachers(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *courseApi) inviteTeacher(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data memberRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to memberRequest")
	}
	if err = api.opts.CourseSvc.InviteTeacher(ctx.Request().Context(), ctx.Param("courseID"), data.Login, claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) removeTeacher(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.RemoveTeacher(ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("login"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) students(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	members, err := api.opts.CourseSvc.Students(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *courseApi) inviteStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data memberRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to memberRequest")
	}
	if err = api.opts.CourseSvc.InviteStudent(ctx.Request().Context(), ctx.Param("courseID"), data.Login, claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) removeStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.RemoveStudent(ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("login"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) studentParents(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	members, err := api.opts.CourseSvc.StudentParents(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("student"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *courseApi) inviteParent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data memberRequest
	if err = bindAndValidate(ctx, api.opts.Validate, &data); err != nil {
		return errors.Wrap(err, "binding to memberRequest")
	}
	if err = api.opts.CourseSvc.InviteParent(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("student"), data.Login, claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) removeParent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.CourseSvc.RemoveParent(
		ctx.Request().Context(), ctx.Param("courseID"), ctx.Param("student"), ctx.Param("login"), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// children lists the caller's own children in the course.
func (api *courseApi) children(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	members, err := api.opts.CourseSvc.ParentChildren(ctx.Request().Context(), ctx.Param("courseID"), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}
