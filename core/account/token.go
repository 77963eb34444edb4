package account

import (
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/trezcool/edhub/core"
)

var nowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Login   string `json:"login,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// TokenBackend issues and verifies session tokens. The signing key is
// injected at construction: the default configuration regenerates it on
// every process start, so tokens do not survive a restart.
type TokenBackend struct {
	appName string
	secret  []byte
	expiry  time.Duration
}

func NewTokenBackend(conf *core.Config) *TokenBackend {
	return &TokenBackend{
		appName: conf.AppName,
		secret:  conf.SecretKey,
		expiry:  conf.TokenExpirationDelta,
	}
}

func (tb *TokenBackend) Issue(acct Account) (string, error) {
	now := nowFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    tb.appName,
			Subject:   acct.Login,
			ExpiresAt: now.Add(tb.expiry).Unix(),
			IssuedAt:  now.Unix(),
		},
		Login:   acct.Login,
		IsAdmin: acct.IsAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tb.secret)
}

// Verify parses and checks a token string, returning the claims.
// Failures are typed: malformed structure, expiry and signature errors
// map to their own kinds.
func (tb *TokenBackend) Verify(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, core.ErrInvalidTokenStructure()
		}
		return tb.secret, nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok {
			switch {
			case vErr.Errors&jwt.ValidationErrorExpired != 0:
				return nil, core.ErrTokenExpired()
			case vErr.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, core.ErrInvalidTokenStructure()
			}
		}
		return nil, core.ErrJWT(err.Error())
	}
	if !token.Valid || claims.Login == "" {
		return nil, core.ErrInvalidTokenStructure()
	}
	return claims, nil
}
