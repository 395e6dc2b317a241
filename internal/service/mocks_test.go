package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/repository"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	args := m.Called(ctx, email)
	return customerArg(args, 0), args.Error(1)
}

func (m *mockGateway) FindCustomerByAppUser(ctx context.Context, userID string) (*model.Customer, error) {
	args := m.Called(ctx, userID)
	return customerArg(args, 0), args.Error(1)
}

func (m *mockGateway) CreateCustomer(ctx context.Context, name, email, appUserID string) (*model.Customer, error) {
	args := m.Called(ctx, name, email, appUserID)
	return customerArg(args, 0), args.Error(1)
}

func (m *mockGateway) CreateInvoice(ctx context.Context, draft model.InvoiceDraft) (*model.Invoice, error) {
	args := m.Called(ctx, draft)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *mockGateway) AddInvoiceItem(ctx context.Context, item model.InvoiceItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *mockGateway) SendInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *mockGateway) VoidInvoice(ctx context.Context, invoiceID string) error {
	return m.Called(ctx, invoiceID).Error(0)
}

func (m *mockGateway) DeleteDraftInvoice(ctx context.Context, invoiceID string) error {
	return m.Called(ctx, invoiceID).Error(0)
}

func (m *mockGateway) GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *mockGateway) ListOpenInvoices(ctx context.Context, customerID string) ([]model.Invoice, error) {
	args := m.Called(ctx, customerID)
	invoices, _ := args.Get(0).([]model.Invoice)
	return invoices, args.Error(1)
}

func (m *mockGateway) ListPaymentIntents(ctx context.Context, customerID string) ([]model.PaymentIntent, error) {
	args := m.Called(ctx, customerID)
	intents, _ := args.Get(0).([]model.PaymentIntent)
	return intents, args.Error(1)
}

func (m *mockGateway) GetPaymentIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	return intentArg(args, 0), args.Error(1)
}

func (m *mockGateway) TagPaymentIntent(ctx context.Context, intentID string, metadata map[string]string) error {
	return m.Called(ctx, intentID, metadata).Error(0)
}

func (m *mockGateway) SetCaptureMethod(ctx context.Context, intentID string, method model.CaptureMethod) (*model.PaymentIntent, error) {
	args := m.Called(ctx, intentID, method)
	return intentArg(args, 0), args.Error(1)
}

func (m *mockGateway) ParseEvent(payload []byte, signature string) (*model.PaymentEvent, error) {
	args := m.Called(payload, signature)
	ev, _ := args.Get(0).(*model.PaymentEvent)
	return ev, args.Error(1)
}

func customerArg(args mock.Arguments, i int) *model.Customer {
	v, _ := args.Get(i).(*model.Customer)
	return v
}

func invoiceArg(args mock.Arguments, i int) *model.Invoice {
	v, _ := args.Get(i).(*model.Invoice)
	return v
}

func intentArg(args mock.Arguments, i int) *model.PaymentIntent {
	v, _ := args.Get(i).(*model.PaymentIntent)
	return v
}

type stubIdentity struct {
	user *model.Identity
	err  error
}

func (s *stubIdentity) GetUser(ctx context.Context, userID string) (*model.Identity, error) {
	return s.user, s.err
}

type reviewKey struct {
	taskID     string
	reviewerID string
}

type stubRepo struct {
	mu sync.Mutex

	links       map[string]model.CustomerLink
	saveLinkErr error

	bookings         []*model.Booking
	createBookingErr error
	statusUpdates    map[string]model.InvoiceStatus

	tasks       map[string]*model.Task
	getTaskErr  error
	getTaskHits int

	reviews map[reviewKey]*model.Review

	applications   map[string]*model.ZapperApplication
	applicationErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		links:         map[string]model.CustomerLink{},
		statusUpdates: map[string]model.InvoiceStatus{},
		tasks:         map[string]*model.Task{},
		reviews:       map[reviewKey]*model.Review{},
		applications:  map[string]*model.ZapperApplication{},
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) Ping(ctx context.Context) error { return nil }

func (s *stubRepo) GetCustomerLink(ctx context.Context, userID string) (*model.CustomerLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[userID]
	if !ok {
		return nil, repository.ErrCustomerLinkNotFound
	}
	return &l, nil
}

func (s *stubRepo) SaveCustomerLink(ctx context.Context, link model.CustomerLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveLinkErr != nil {
		return s.saveLinkErr
	}
	s.links[link.UserID] = link
	return nil
}

func (s *stubRepo) CreateBooking(ctx context.Context, b *model.Booking) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createBookingErr != nil {
		return 0, s.createBookingErr
	}
	b.ID = int64(len(s.bookings) + 1)
	s.bookings = append(s.bookings, b)
	return b.ID, nil
}

func (s *stubRepo) GetBookingByInvoice(ctx context.Context, invoiceID string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		if b.DepositInvoiceID == invoiceID || b.RemainderInvoiceID == invoiceID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (s *stubRepo) ListPendingBookings(ctx context.Context, afterID int64, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []model.Booking
	for _, b := range s.bookings {
		if b.ID <= afterID || len(res) >= limit {
			continue
		}
		if isPending(b.DepositStatus) || isPending(b.RemainderStatus) {
			res = append(res, *b)
		}
	}
	return res, nil
}

func isPending(st model.InvoiceStatus) bool {
	return st == model.InvoiceStatusDraft || st == model.InvoiceStatusOpen
}

func (s *stubRepo) UpdateInvoiceStatus(ctx context.Context, invoiceID string, status model.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		switch invoiceID {
		case b.DepositInvoiceID:
			b.DepositStatus = status
		case b.RemainderInvoiceID:
			b.RemainderStatus = status
		default:
			continue
		}
		s.statusUpdates[invoiceID] = status
		return nil
	}
	return repository.ErrBookingNotFound
}

func (s *stubRepo) ListTasks(ctx context.Context, category string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]model.Task, 0)
	for _, t := range s.tasks {
		if category == "" || t.Category == category {
			res = append(res, *t)
		}
	}
	return res, nil
}

func (s *stubRepo) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getTaskHits++
	if s.getTaskErr != nil {
		return nil, s.getTaskErr
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return t, nil
}

func (s *stubRepo) UpsertReview(ctx context.Context, review model.Review) (*model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reviewKey{taskID: review.TaskID, reviewerID: review.ReviewerID}
	if existing, ok := s.reviews[key]; ok {
		review.ID = existing.ID
	} else {
		review.ID = "review-" + review.ReviewerID
	}
	s.reviews[key] = &review
	return &review, nil
}

func (s *stubRepo) CreateZapperApplication(ctx context.Context, app *model.ZapperApplication) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applicationErr != nil {
		return 0, s.applicationErr
	}
	if _, ok := s.applications[app.UserID]; ok {
		return 0, repository.ErrApplicationExists
	}
	s.applications[app.UserID] = app
	return int64(len(s.applications)), nil
}
