// Package validate plugs go-playground/validator into echo and turns field
// errors into the user-facing messages declared on request structs.
//
// A field declares its message with a msg tag. A plain value applies to every
// failing rule; "rule=message" pairs separated by ";" pick per rule:
//
//	Email string `json:"familyEmail" validate:"required,email" msg:"required=Family email required;email=Invalid family email"`
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var tenDigits = regexp.MustCompile(`^\d{10}$`)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the custom rules registered:
//
//	nodigits  string contains no decimal digit
//	phone10   string is exactly ten digits
//	notblank  string is not empty after trimming
//	age       string is a number from 0 to 150
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("nodigits", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsDigit)
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return tenDigits.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("age", func(fl validator.FieldLevel) bool {
		n, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
		return err == nil && n >= 0 && n <= 150
	})
	return &Validator{v: v}
}

// FieldError is the first failing field of a checked struct.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

var shared = New()

// Struct checks i against its tags outside of a request, so services apply
// the same rules the handlers do.
func Struct(i any) error {
	return shared.check(i)
}

func (cv *Validator) check(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &FieldError{Field: fe.Field(), Rule: fe.Tag(), Message: Message(i, fe)}
}

// Validate checks i and reports the first failing field as a 400.
func (cv *Validator) Validate(i any) error {
	if err := cv.check(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Message resolves the user-facing text for fe on the struct i.
func Message(i any, fe validator.FieldError) string {
	if f, ok := lookupField(reflect.TypeOf(i), fe.StructNamespace()); ok {
		if m := pickMessage(f.Tag.Get("msg"), fe.Tag()); m != "" {
			return m
		}
	}
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func pickMessage(tag, rule string) string {
	if tag == "" {
		return ""
	}
	if !strings.Contains(tag, "=") {
		return tag
	}
	for _, pair := range strings.Split(tag, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(k) == rule {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// lookupField follows a namespace such as "addPatientRequest.Reading.Oxygen"
// down from t.
func lookupField(t reflect.Type, namespace string) (reflect.StructField, bool) {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return reflect.StructField{}, false
	}
	var field reflect.StructField
	for _, name := range parts[1:] {
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Map {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return reflect.StructField{}, false
		}
		f, ok := t.FieldByName(name)
		if !ok {
			return reflect.StructField{}, false
		}
		field = f
		t = f.Type
	}
	return field, true
}

// Bind decodes the request body into i and validates it. Decode failures are
// reported as a generic 400.
func Bind(c echo.Context, i any) error {
	if err := c.Bind(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(i)
}
