package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/repository"
)

// CheckCustomer ищет платёжного клиента по точному совпадению email.
// Пустой email заменяется подтверждённым email пользователя. Клиент, найденный
// по подтверждённому email, связывается с пользователем.
func (s *Service) CheckCustomer(ctx context.Context, ident model.Identity, email string) (*model.CustomerLookup, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		email = ident.Email
	}
	if email == "" {
		return nil, validationError("email is required")
	}

	cus, err := s.payments.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cus == nil {
		return &model.CustomerLookup{IsCustomer: false}, nil
	}

	if ident.UserID != "" && ident.Email != "" && strings.EqualFold(email, ident.Email) {
		s.saveLink(ctx, ident.UserID, ident.Email, cus.ID)
	}

	id := cus.ID
	return &model.CustomerLookup{IsCustomer: true, CustomerID: &id}, nil
}

// CreateCustomer создаёт платёжного клиента для пользователя и запоминает связь с ним.
// Недостающие имя и email берутся из профиля провайдера идентификации.
func (s *Service) CreateCustomer(ctx context.Context, ident model.Identity, name, email string) (string, error) {
	ident.Name = firstNonEmpty(strings.TrimSpace(name), ident.Name)
	ident.Email = firstNonEmpty(strings.TrimSpace(email), ident.Email)
	ident = s.withProfile(ctx, ident)

	if ident.Email == "" {
		return "", validationError("email is required")
	}

	// Вызов разделяют все ожидающие запросы, поэтому отмена первого из них его не прерывает.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.customers.Do("create:"+ident.UserID+":"+ident.Email, func() (any, error) {
		return s.createCustomer(shared, ident)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// EnsureCustomer возвращает платёжного клиента пользователя, создавая его при первом обращении.
func (s *Service) EnsureCustomer(ctx context.Context, ident model.Identity) (string, bool, error) {
	type ensured struct {
		id      string
		created bool
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := s.customers.Do("ensure:"+ident.UserID, func() (any, error) {
		id, err := s.resolveCustomer(shared, ident.UserID)
		if err == nil {
			return ensured{id: id}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		full := s.withProfile(shared, ident)
		if full.Email == "" {
			return nil, validationError("email is required to create a customer")
		}

		id, err = s.createCustomer(shared, full)
		if err != nil {
			return nil, err
		}
		return ensured{id: id, created: true}, nil
	})
	if err != nil {
		return "", false, err
	}

	res := v.(ensured)
	return res.id, res.created, nil
}

func (s *Service) createCustomer(ctx context.Context, ident model.Identity) (string, error) {
	cus, err := s.payments.CreateCustomer(ctx, ident.Name, ident.Email, ident.UserID)
	if err != nil {
		return "", err
	}

	s.logger.Info("payment customer created",
		zap.String("userID", ident.UserID),
		zap.String("customerID", cus.ID),
	)

	s.saveLink(ctx, ident.UserID, ident.Email, cus.ID)
	return cus.ID, nil
}

// resolveCustomer возвращает платёжного клиента пользователя: сначала по сохранённой связи,
// затем поиском по метаданным платёжной платформы с записью найденной связи.
func (s *Service) resolveCustomer(ctx context.Context, userID string) (string, error) {
	link, err := s.repo.GetCustomerLink(ctx, userID)
	if err == nil {
		return link.CustomerID, nil
	}
	if !errors.Is(err, repository.ErrCustomerLinkNotFound) {
		return "", err
	}

	cus, err := s.payments.FindCustomerByAppUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if cus == nil {
		return "", fmt.Errorf("%w: payment customer for user %s", ErrNotFound, userID)
	}

	s.saveLink(ctx, userID, cus.Email, cus.ID)
	return cus.ID, nil
}

// saveLink сохраняет связь пользователя с клиентом. Ошибка не прерывает запрос:
// связь восстанавливается поиском по метаданным.
func (s *Service) saveLink(ctx context.Context, userID, email, customerID string) {
	err := s.repo.SaveCustomerLink(ctx, model.CustomerLink{
		UserID:     userID,
		Email:      email,
		CustomerID: customerID,
	})
	if err != nil {
		s.logger.Warn("failed to save customer link",
			zap.String("userID", userID),
			zap.String("customerID", customerID),
			zap.Error(err),
		)
	}
}

func (s *Service) withProfile(ctx context.Context, ident model.Identity) model.Identity {
	if s.identity == nil || (ident.Email != "" && ident.Name != "") {
		return ident
	}

	profile, err := s.identity.GetUser(ctx, ident.UserID)
	if err != nil {
		s.logger.Warn("identity profile lookup failed", zap.String("userID", ident.UserID), zap.Error(err))
		return ident
	}

	ident.Email = firstNonEmpty(ident.Email, profile.Email)
	ident.Name = firstNonEmpty(ident.Name, profile.Name)
	return ident
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
