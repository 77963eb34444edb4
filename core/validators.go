package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	emailTag   = "loginemail"
	emailText  = "incorrect email format"
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	strongPwdTag   = "strongpassword"
	strongPwdText  = "password must be at least 8 characters and contain a digit, a letter and a special character"
	pwdDigitRegex  = regexp.MustCompile(`\d`)
	pwdLetterRegex = regexp.MustCompile(`\p{L}`)
	pwdSymbolRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(emailTag, loginEmailValidation)
	RegisterCustomTranslation(validate, translator, emailTag, emailText)

	_ = validate.RegisterValidation(strongPwdTag, strongPasswordValidation)
	RegisterCustomTranslation(validate, translator, strongPwdTag, strongPwdText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// loginEmailValidation enforces the account login format: an email-shaped
// string, at most 254 characters overall and 64 before the '@', with no
// consecutive dots.
func loginEmailValidation(fl validator.FieldLevel) bool {
	return ValidEmail(fl.Field().String())
}

func ValidEmail(email string) bool {
	if !emailRegex.MatchString(email) || len(email) > 254 || strings.Contains(email, "..") {
		return false
	}
	return len(strings.SplitN(email, "@", 2)[0]) <= 64
}

// strongPasswordValidation requires length >= 8 with at least one digit,
// one letter and one special character.
func strongPasswordValidation(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

func StrongPassword(pwd string) bool {
	return len(pwd) >= 8 &&
		pwdDigitRegex.MatchString(pwd) &&
		pwdLetterRegex.MatchString(pwd) &&
		pwdSymbolRegex.MatchString(pwd)
}
