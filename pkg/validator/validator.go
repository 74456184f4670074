package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"

	"github.com/clinicaonline/turnos-api/pkg/errors"
)

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator that uses the `validate` tag and json field names
func New() Validator {
	v := playground.New()
	configure(v)
	return &validator{v: v}
}

func (v *validator) Validate(obj interface{}) error {
	return Translate(v.v.Struct(obj))
}

// RegisterGinValidations installs the custom tags on gin's default binding
// engine so `binding:"hhmm"` works in request structs.
func RegisterGinValidations() error {
	v, ok := binding.Validator.Engine().(*playground.Validate)
	if !ok {
		return stderrors.New("unexpected gin validator engine")
	}
	configure(v)
	return nil
}

func configure(v *playground.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl playground.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
}

// Translate converts validator/v10 and binding errors into a VALIDATION AppError.
// Other errors pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.Validation(strings.Join(msgs, "; "))
}

func describe(fe playground.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "hhmm":
		return fmt.Sprintf("%s must use the HH:MM format", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
