// Package validation содержит проверку входных данных HTTP-запросов.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	dateLayout = "2006-01-02"
	adultAge   = 18
)

var (
	usStateRe = regexp.MustCompile(`^[A-Z]{2}$`)
	zipCodeRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	ssnRe     = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	phoneRe   = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError описывает нарушение правила для одного поля запроса.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

// Error содержит все нарушения, найденные при проверке запроса.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", f.Field, f.Rule))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate проверяет структуру по тегам validate и возвращает *Error при нарушениях.
func Validate(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	res := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		res.Fields = append(res.Fields, FieldError{
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return res
}

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		mustRegister(v, "servicedate", isDate)
		mustRegister(v, "adult", isAdult)
		mustRegister(v, "usstate", matches(usStateRe))
		mustRegister(v, "zipcode", matches(zipCodeRe))
		mustRegister(v, "ssn", matches(ssnRe))
		mustRegister(v, "phone", matches(phoneRe))

		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func isDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(dateLayout, fl.Field().String())
	return err == nil
}

func isAdult(fl validator.FieldLevel) bool {
	dob, err := time.Parse(dateLayout, fl.Field().String())
	if err != nil {
		return false
	}
	return IsAdult(dob, time.Now())
}

// IsAdult сообщает, исполнилось ли человеку с датой рождения dob 18 лет на момент now.
func IsAdult(dob, now time.Time) bool {
	y, m, d := now.UTC().Date()
	return !dob.After(time.Date(y-adultAge, m, d, 0, 0, 0, 0, time.UTC))
}
