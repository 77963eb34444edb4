package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/account"
)

const (
	contextTokenKey   = "accountToken"
	contextAccountKey = "account"
)

// newJWTConfig builds the JWT auth middleware config around the signing
// secret injected at startup.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(account.Claims),
	}
}

func getContextClaims(ctx echo.Context) (account.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*account.Claims); ok {
			return *claims, nil
		}
	}
	return account.Claims{}, errUnauthorized
}

func getContextAccount(ctx echo.Context, svc *account.Service) (account.PublicAccount, error) {
	if acct, ok := ctx.Get(contextAccountKey).(account.PublicAccount); ok {
		return acct, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return account.PublicAccount{}, err
	}
	acct, err := svc.Info(ctx.Request().Context(), claims.Login)
	if err != nil {
		return account.PublicAccount{}, errors.Wrap(err, "finding account")
	}
	ctx.Set(contextAccountKey, acct)
	return acct, nil
}

// authedMiddleware resolves the token's account after JWT validation.
// A valid token whose account has since been deleted is rejected.
func authedMiddleware(svc *account.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextAccount(ctx, svc); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
