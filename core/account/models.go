package account

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/edhub/core"
)

// Account is a registered user of the system. The login doubles as the
// primary key and is referenced by every membership relation.
type Account struct {
	Login        string    `json:"login" db:"login"`
	Name         string    `json:"name" db:"name"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// translateValidationErrors maps the custom login/password tags to the
// typed API errors so clients get stable kinds instead of field maps.
func translateValidationErrors(err error, email string) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, fErr := range vErrs {
		switch fErr.Tag() {
		case "loginemail":
			return core.ErrBadEmail(email)
		case "strongpassword":
			return core.ErrWeakPassword()
		}
	}
	return err
}

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Login    string `json:"login" validate:"required,loginemail"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,strongpassword"`
}

func (na *NewAccount) Validate(validate *validator.Validate, _ ut.Translator) error {
	na.Login = core.CleanString(na.Login, true /* lower */)
	na.Name = core.CleanString(na.Name)
	if err := validate.Struct(na); err != nil {
		return translateValidationErrors(err, na.Login)
	}
	return nil
}

// Credentials is a login request.
type Credentials struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Login = core.CleanString(c.Login, true /* lower */)
	return validate.Struct(c)
}

// PasswordChange carries a credential rotation request; the current
// password must check out before the new one is accepted.
type PasswordChange struct {
	Login       string `json:"login" validate:"required"`
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,strongpassword"`
}

func (pc *PasswordChange) Validate(validate *validator.Validate) error {
	pc.Login = core.CleanString(pc.Login, true /* lower */)
	if err := validate.Struct(pc); err != nil {
		return translateValidationErrors(err, pc.Login)
	}
	return nil
}

// PublicAccount is the account shape exposed to other users.
type PublicAccount struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

func (a Account) Public() PublicAccount {
	return PublicAccount{Login: a.Login, Name: a.Name}
}
