package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/zaptasks/zaptasks-api/internal/billing"
	"github.com/zaptasks/zaptasks-api/internal/model"
)

const displayDateLayout = "2006-01-02T15:04:05.000Z07:00"

// ListUnpaidInvoices возвращает открытые счета платёжного клиента пользователя.
func (s *Service) ListUnpaidInvoices(ctx context.Context, ident model.Identity) ([]model.UnpaidInvoice, error) {
	customerID, err := s.resolveCustomer(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.payments.ListOpenInvoices(ctx, customerID)
	if err != nil {
		return nil, err
	}

	res := make([]model.UnpaidInvoice, 0, len(invoices))
	for i := range invoices {
		res = append(res, toUnpaidInvoice(&invoices[i]))
	}
	return res, nil
}

func toUnpaidInvoice(inv *model.Invoice) model.UnpaidInvoice {
	res := model.UnpaidInvoice{
		ID:            inv.ID,
		Amount:        inv.AmountDue,
		DisplayAmount: billing.FormatAmount(inv.AmountDue, inv.Currency),
		Currency:      inv.Currency,
		Date:          inv.CreatedAt.UTC().Format(displayDateLayout),
		InvoiceType:   inv.Type(),
		Services:      parseServices(inv.Metadata[model.MetadataServices]),
		Lines:         inv.Lines,
	}

	if inv.PaymentIntent != nil && inv.PaymentIntent.ClientSecret != "" {
		secret := inv.PaymentIntent.ClientSecret
		res.PaymentIntentClientSecret = &secret
	}

	if res.Lines == nil {
		res.Lines = []model.InvoiceLine{}
	}

	return res
}

func parseServices(raw string) []string {
	services := []string{}
	if strings.TrimSpace(raw) == "" {
		return services
	}
	if err := json.Unmarshal([]byte(raw), &services); err != nil || services == nil {
		return []string{}
	}
	return services
}

// GetInvoice возвращает счёт вместе с его платежом.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceDetails, error) {
	inv, err := s.getInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &model.InvoiceDetails{Invoice: inv, PaymentIntent: inv.PaymentIntent}, nil
}

// GetInvoiceClientSecret возвращает счёт и секрет его платежа для оплаты на стороне клиента.
func (s *Service) GetInvoiceClientSecret(ctx context.Context, invoiceID string) (*model.InvoiceCheckout, error) {
	inv, err := s.getInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	res := &model.InvoiceCheckout{Invoice: inv}
	if inv.PaymentIntent != nil && inv.PaymentIntent.ClientSecret != "" {
		secret := inv.PaymentIntent.ClientSecret
		res.ClientSecret = &secret
	}
	return res, nil
}

func (s *Service) getInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, validationError("invoiceId is required")
	}

	inv, err := s.payments.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, notFoundFromPayments(err)
	}
	return inv, nil
}
