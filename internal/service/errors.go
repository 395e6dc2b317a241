package service

import (
	"errors"
	"fmt"

	"github.com/zaptasks/zaptasks-api/internal/payments"
)

var (
	// ErrValidation возвращается для отсутствующих или некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если счёт, клиент, платёж или задание не найдены.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если пользователь не вправе обращаться к ресурсу.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict возвращается, если ресурс уже существует или находится в неподходящем состоянии.
	ErrConflict = errors.New("conflict")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFoundFromPayments превращает отсутствие объекта в платёжной платформе в ErrNotFound.
func notFoundFromPayments(err error) error {
	if errors.Is(err, payments.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
