// Package payments предоставляет клиент платёжной платформы Stripe.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

// Stripe ограничивает длину значения метаданных 500 символами.
const maxMetadataValueLen = 500

var (
	// ErrNotFound возвращается, если объект отсутствует в платёжной платформе.
	ErrNotFound = errors.New("payment platform object not found")
	// ErrInvalidSignature возвращается для события с неверной подписью.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Config содержит параметры подключения к Stripe.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL переопределяет адрес API, например для stripe-mock.
	APIURL string
}

// Client инкапсулирует обращения к Stripe API.
type Client struct {
	api           *client.API
	webhookSecret string
}

// NewClient создаёт клиент Stripe. Сетевые повторы отключены.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Sugar(),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	var api client.API
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &Client{
		api:           &api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// FindCustomerByEmail возвращает первого клиента с указанным email или nil.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := c.api.Customers.List(params)
	if it.Next() {
		return toCustomer(it.Customer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list customers: %w", mapError(err))
	}
	return nil, nil
}

// FindCustomerByAppUser ищет клиента по идентификатору пользователя в метаданных.
func (c *Client) FindCustomerByAppUser(ctx context.Context, userID string) (*model.Customer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata[%q]:%q", model.MetadataAppUserID, userID),
			Limit: stripe.Int64(1),
		},
	}
	params.Context = ctx
	params.Single = true

	it := c.api.Customers.Search(params)
	if it.Next() {
		return toCustomer(it.Customer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("search customers: %w", mapError(err))
	}
	return nil, nil
}

// CreateCustomer создаёт клиента с обратной ссылкой на пользователя приложения.
func (c *Client) CreateCustomer(ctx context.Context, name, email, appUserID string) (*model.Customer, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(model.MetadataAppUserID, appUserID)
	params.SetIdempotencyKey(customerIdempotencyKey(appUserID, name, email))

	cus, err := c.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", mapError(err))
	}
	return toCustomer(cus), nil
}

// CreateInvoice создаёт черновик счёта с оплатой по ссылке.
func (c *Client) CreateInvoice(ctx context.Context, draft model.InvoiceDraft) (*model.Invoice, error) {
	params := &stripe.InvoiceParams{
		Customer:         stripe.String(draft.CustomerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(draft.DaysUntilDue),
	}
	params.Context = ctx
	for k, v := range draft.Metadata {
		params.AddMetadata(k, truncateMetadata(v))
	}

	inv, err := c.api.Invoices.New(params)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", mapError(err))
	}
	return toInvoice(inv), nil
}

// AddInvoiceItem добавляет строку в счёт.
func (c *Client) AddInvoiceItem(ctx context.Context, item model.InvoiceItem) error {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(item.CustomerID),
		Invoice:     stripe.String(item.InvoiceID),
		Amount:      stripe.Int64(item.Amount),
		Currency:    stripe.String(item.Currency),
		Description: stripe.String(item.Description),
	}
	params.Context = ctx

	if _, err := c.api.InvoiceItems.New(params); err != nil {
		return fmt.Errorf("add invoice item to %s: %w", item.InvoiceID, mapError(err))
	}
	return nil
}

// FinalizeInvoice финализирует счёт, после чего платформа создаёт для него платёж.
func (c *Client) FinalizeInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx

	inv, err := c.api.Invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("finalize invoice %s: %w", invoiceID, mapError(err))
	}
	return toInvoice(inv), nil
}

// SendInvoice отправляет счёт клиенту.
func (c *Client) SendInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	params := &stripe.InvoiceSendInvoiceParams{}
	params.Context = ctx

	inv, err := c.api.Invoices.SendInvoice(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("send invoice %s: %w", invoiceID, mapError(err))
	}
	return toInvoice(inv), nil
}

// VoidInvoice аннулирует финализированный счёт.
func (c *Client) VoidInvoice(ctx context.Context, invoiceID string) error {
	params := &stripe.InvoiceVoidInvoiceParams{}
	params.Context = ctx

	if _, err := c.api.Invoices.VoidInvoice(invoiceID, params); err != nil {
		return fmt.Errorf("void invoice %s: %w", invoiceID, mapError(err))
	}
	return nil
}

// DeleteDraftInvoice удаляет черновик счёта.
func (c *Client) DeleteDraftInvoice(ctx context.Context, invoiceID string) error {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	if _, err := c.api.Invoices.Del(invoiceID, params); err != nil {
		return fmt.Errorf("delete draft invoice %s: %w", invoiceID, mapError(err))
	}
	return nil
}

// GetInvoice возвращает счёт вместе с развёрнутым платежом.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	inv, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", invoiceID, mapError(err))
	}
	return toInvoice(inv), nil
}

// ListOpenInvoices возвращает все открытые счета клиента с развёрнутыми платежами.
func (c *Client) ListOpenInvoices(ctx context.Context, customerID string) ([]model.Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusOpen)),
	}
	params.Context = ctx
	params.AddExpand("data.payment_intent")

	var res []model.Invoice
	it := c.api.Invoices.List(params)
	for it.Next() {
		res = append(res, *toInvoice(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list open invoices: %w", mapError(err))
	}
	return res, nil
}

// ListPaymentIntents возвращает все платежи клиента.
func (c *Client) ListPaymentIntents(ctx context.Context, customerID string) ([]model.PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Context = ctx

	var res []model.PaymentIntent
	it := c.api.PaymentIntents.List(params)
	for it.Next() {
		res = append(res, *toPaymentIntent(it.PaymentIntent()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list payment intents: %w", mapError(err))
	}
	return res, nil
}

// GetPaymentIntent возвращает платёж по идентификатору.
func (c *Client) GetPaymentIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent %s: %w", intentID, mapError(err))
	}
	return toPaymentIntent(pi), nil
}

// TagPaymentIntent дописывает метаданные платежа.
func (c *Client) TagPaymentIntent(ctx context.Context, intentID string, metadata map[string]string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, truncateMetadata(v))
	}

	if _, err := c.api.PaymentIntents.Update(intentID, params); err != nil {
		return fmt.Errorf("tag payment intent %s: %w", intentID, mapError(err))
	}
	return nil
}

// SetCaptureMethod переключает режим списания платежа.
func (c *Client) SetCaptureMethod(ctx context.Context, intentID string, method model.CaptureMethod) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{CaptureMethod: stripe.String(string(method))}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Update(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("update capture method of %s: %w", intentID, mapError(err))
	}
	return toPaymentIntent(pi), nil
}

// Message возвращает сообщение платёжной платформы из ошибки, если оно есть.
func Message(err error) (string, bool) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg, true
	}
	return "", false
}

func mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func customerIdempotencyKey(appUserID, name, email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("zaptasks:customer:"+appUserID+":"+name+":"+email)).String()
}

func truncateMetadata(v string) string {
	if utf8.RuneCountInString(v) <= maxMetadataValueLen {
		return v
	}
	runes := []rune(v)
	return string(runes[:maxMetadataValueLen])
}

func toCustomer(cus *stripe.Customer) *model.Customer {
	return &model.Customer{
		ID:        cus.ID,
		Email:     cus.Email,
		Name:      cus.Name,
		AppUserID: cus.Metadata[model.MetadataAppUserID],
	}
}

func toInvoice(inv *stripe.Invoice) *model.Invoice {
	res := &model.Invoice{
		ID:        inv.ID,
		AmountDue: inv.AmountDue,
		Currency:  string(inv.Currency),
		Status:    model.InvoiceStatus(inv.Status),
		HostedURL: inv.HostedInvoiceURL,
		CreatedAt: time.Unix(inv.Created, 0).UTC(),
		Metadata:  inv.Metadata,
	}

	if inv.Customer != nil {
		res.CustomerID = inv.Customer.ID
	}

	if inv.DueDate > 0 {
		due := time.Unix(inv.DueDate, 0).UTC()
		res.DueDate = &due
	}

	if inv.PaymentIntent != nil {
		res.PaymentIntentID = inv.PaymentIntent.ID
		// Неразвёрнутая ссылка содержит только идентификатор.
		if inv.PaymentIntent.ClientSecret != "" || inv.PaymentIntent.Status != "" {
			res.PaymentIntent = toPaymentIntent(inv.PaymentIntent)
		}
	}

	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			res.Lines = append(res.Lines, model.InvoiceLine{
				Description: line.Description,
				Amount:      line.Amount,
			})
		}
	}

	return res
}

func toPaymentIntent(pi *stripe.PaymentIntent) *model.PaymentIntent {
	res := &model.PaymentIntent{
		ID:            pi.ID,
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
		Status:        string(pi.Status),
		CaptureMethod: model.CaptureMethod(pi.CaptureMethod),
		ClientSecret:  pi.ClientSecret,
		Metadata:      pi.Metadata,
	}
	if pi.Customer != nil {
		res.CustomerID = pi.Customer.ID
	}
	return res
}
