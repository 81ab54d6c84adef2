package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/redmonkez12/shelfshare-auth/internal/password"
)

// DefaultPasswordMinLength applies when no minimum is configured.
const DefaultPasswordMinLength = 8

// requestValidator wraps go-playground/validator and reports failures keyed
// by JSON field name.
type requestValidator struct {
	validate   *validator.Validate
	minPassLen int
	maxPassLen int
}

func newRequestValidator(minPasswordLength, maxPasswordBytes int) *requestValidator {
	if minPasswordLength <= 0 {
		minPasswordLength = DefaultPasswordMinLength
	}
	if maxPasswordBytes <= 0 {
		maxPasswordBytes = password.MaxPasswordBytes
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// the minimum counts characters, the maximum counts bytes
	mustRegisterValidation(validate, "password_len", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) >= minPasswordLength
	})
	mustRegisterValidation(validate, "password_max", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})

	return &requestValidator{validate: validate, minPassLen: minPasswordLength, maxPassLen: maxPasswordBytes}
}

// mustRegisterValidation panics when tag cannot be registered, since the
// request types would otherwise validate without the rule.
func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// Struct validates req and returns per-field messages, or nil when valid.
func (v *requestValidator) Struct(req any) (map[string]string, error) {
	err := v.validate.Struct(req)
	if err == nil {
		return nil, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = v.message(fe)
	}
	return fields, nil
}

func (v *requestValidator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "password_len":
		return fmt.Sprintf("%s must be at least %d characters long", fe.Field(), v.minPassLen)
	case "password_max":
		return fmt.Sprintf("%s must be at most %d bytes long", fe.Field(), v.maxPassLen)
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
