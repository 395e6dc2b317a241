package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/repository"
	"github.com/zaptasks/zaptasks-api/internal/validation"
)

const ssnLast4Len = 4

// SubmitZapperApplication сохраняет анкету исполнителя. От номера SSN хранятся только последние четыре цифры.
func (s *Service) SubmitZapperApplication(ctx context.Context, ident model.Identity, app model.ZapperApplication, ssn string) (int64, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(ssn), "-", "")
	if len(digits) < ssnLast4Len {
		return 0, validationError("ssn is required")
	}
	if !validation.IsAdult(app.DateOfBirth, s.now()) {
		return 0, validationError("applicant must be at least 18 years old")
	}
	if len(app.Skills) == 0 {
		return 0, validationError("at least one skill is required")
	}

	app.UserID = ident.UserID
	app.SSNLast4 = digits[len(digits)-ssnLast4Len:]
	app.State = strings.ToUpper(app.State)
	app.Skills = slices.Compact(slices.Sorted(slices.Values(app.Skills)))

	id, err := s.repo.CreateZapperApplication(ctx, &app)
	if err != nil {
		if errors.Is(err, repository.ErrApplicationExists) {
			return 0, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return 0, err
	}

	s.logger.Info("zapper application submitted", zap.String("userID", ident.UserID), zap.Int64("applicationID", id))
	return id, nil
}
