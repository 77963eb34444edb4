package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edhub/core/account"
)

type accountApi struct {
	opts *Options
}

func registerAccountAPI(g *echo.Group, jwt, authed echo.MiddlewareFunc, opts *Options) {
	api := accountApi{opts: opts}

	ag := g.Group("/accounts")

	// un-authed endpoints
	// TODO: rate limit `/register` & `/login`
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)

	// authed endpoints
	au := ag.Group("", jwt, authed)
	au.GET("/me", api.me)
	au.POST("/password", api.changePassword)
	au.DELETE("/me", api.destroy)
	au.GET("", api.query)
	au.POST("/:login/admin", api.grantAdmin)
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.opts.Validate, api.opts.Translator); err != nil {
		return err
	}

	sess, err := api.opts.AccountSvc.Register(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *accountApi) login(ctx echo.Context) error {
	var data account.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	sess, err := api.opts.AccountSvc.Authenticate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *accountApi) me(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.opts.AccountSvc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) changePassword(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data account.PasswordChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordChange")
	}
	data.Login = claims.Login
	if err = data.Validate(api.opts.Validate); err != nil {
		return err
	}

	if err = api.opts.AccountSvc.ChangePassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroy removes the caller's own account together with the courses
// they were the sole teacher of.
func (api *accountApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.AccountSvc.Remove(ctx.Request().Context(), claims.Login); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	accts, err := api.opts.AccountSvc.List(ctx.Request().Context(), claims.Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, accts)
}

func (api *accountApi) grantAdmin(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.opts.AccountSvc.GrantAdmin(ctx.Request().Context(), claims.Login, ctx.Param("login")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
