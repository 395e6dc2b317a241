// Package service реализует бизнес-логику бронирования и оплаты услуг ZapTasks.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	GetCustomerLink(ctx context.Context, userID string) (*model.CustomerLink, error)
	SaveCustomerLink(ctx context.Context, link model.CustomerLink) error
	CreateBooking(ctx context.Context, b *model.Booking) (int64, error)
	GetBookingByInvoice(ctx context.Context, invoiceID string) (*model.Booking, error)
	ListPendingBookings(ctx context.Context, afterID int64, limit int) ([]model.Booking, error)
	UpdateInvoiceStatus(ctx context.Context, invoiceID string, status model.InvoiceStatus) error
	ListTasks(ctx context.Context, category string) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpsertReview(ctx context.Context, review model.Review) (*model.Review, error)
	CreateZapperApplication(ctx context.Context, app *model.ZapperApplication) (int64, error)
}

// PaymentGateway описывает операции платёжной платформы, используемые сервисом.
type PaymentGateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error)
	FindCustomerByAppUser(ctx context.Context, userID string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, name, email, appUserID string) (*model.Customer, error)
	CreateInvoice(ctx context.Context, draft model.InvoiceDraft) (*model.Invoice, error)
	AddInvoiceItem(ctx context.Context, item model.InvoiceItem) error
	FinalizeInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	SendInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	VoidInvoice(ctx context.Context, invoiceID string) error
	DeleteDraftInvoice(ctx context.Context, invoiceID string) error
	GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	ListOpenInvoices(ctx context.Context, customerID string) ([]model.Invoice, error)
	ListPaymentIntents(ctx context.Context, customerID string) ([]model.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error)
	TagPaymentIntent(ctx context.Context, intentID string, metadata map[string]string) error
	SetCaptureMethod(ctx context.Context, intentID string, method model.CaptureMethod) (*model.PaymentIntent, error)
	ParseEvent(payload []byte, signature string) (*model.PaymentEvent, error)
}

// IdentityProvider возвращает профиль пользователя провайдера идентификации.
type IdentityProvider interface {
	GetUser(ctx context.Context, userID string) (*model.Identity, error)
}

// Service содержит бизнес-логику сервиса ZapTasks.
type Service struct {
	repo     Repository
	payments PaymentGateway
	identity IdentityProvider
	logger   *zap.Logger
	currency string
	now      func() time.Time

	customers singleflight.Group
}

// NewService создаёт сервис. identity может быть nil, тогда используются только данные сессии.
func NewService(repo Repository, gateway PaymentGateway, identity IdentityProvider, logger *zap.Logger, currency string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		payments: gateway,
		identity: identity,
		logger:   logger,
		currency: currency,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
