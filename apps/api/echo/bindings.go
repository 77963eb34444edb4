package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Request payloads. Item ids and grades travel as strings; the use-case
// layer parses them so a bad value fails with the NOT_INTEGER kind
// instead of a generic binding error.

type (
	createCourseRequest struct {
		Title string `json:"title" validate:"required"`
	}

	memberRequest struct {
		Login string `json:"login" validate:"required"`
	}

	postRequest struct {
		Title       string `json:"title" validate:"required"`
		Description string `json:"description"`
	}

	submitRequest struct {
		Comment string `json:"comment"`
	}

	gradeRequest struct {
		Grade string `json:"grade" validate:"required"`
	}
)

func bindAndValidate(ctx echo.Context, validate *validator.Validate, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return err
	}
	return validate.Struct(data)
}

// queryList splits a comma-separated query param; empty means none.
func queryList(ctx echo.Context, param string) []string {
	raw := strings.TrimSpace(ctx.QueryParam(param))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
