// Package handler содержит HTTP-обработчики API сервиса ZapTasks.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/middleware"
	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/payments"
	"github.com/zaptasks/zaptasks-api/internal/service"
	"github.com/zaptasks/zaptasks-api/internal/validation"
)

const (
	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 64 << 10

	signatureHeader = "Stripe-Signature"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	CheckCustomer(ctx context.Context, ident model.Identity, email string) (*model.CustomerLookup, error)
	CreateCustomer(ctx context.Context, ident model.Identity, name, email string) (string, error)
	EnsureCustomer(ctx context.Context, ident model.Identity) (string, bool, error)

	CreateInvoices(ctx context.Context, ident model.Identity, req model.InvoiceRequest) (*model.InvoicePair, error)
	Quote(hours, people int, bringEquipment bool) (*model.Quote, error)
	ListUnpaidInvoices(ctx context.Context, ident model.Identity) ([]model.UnpaidInvoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceDetails, error)
	GetInvoiceClientSecret(ctx context.Context, invoiceID string) (*model.InvoiceCheckout, error)

	ConfirmDepositPayment(ctx context.Context, invoiceID, intentID string) (*model.PaymentConfirmation, error)
	SetupRemainingPayment(ctx context.Context, invoiceID string) (*model.RemainderSetup, error)
	HandlePaymentEvent(ctx context.Context, payload []byte, signature string) error

	ListTasks(ctx context.Context, category string) ([]model.Task, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	RateTask(ctx context.Context, ident model.Identity, r model.Rating) (*model.Review, error)

	SubmitZapperApplication(ctx context.Context, ident model.Identity, app model.ZapperApplication, ssn string) (int64, error)
}

// Handler реализует HTTP-обработчики API сервиса ZapTasks.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// Ограничитель частоты запросов может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    limiter,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health сообщает о доступности сервиса и хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StripeWebhook принимает события платёжной платформы.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.service.HandlePaymentEvent(r.Context(), payload, r.Header.Get(signatureHeader)); err != nil {
		h.fail(w, err, "handle payment event error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return ident, ok
}

// decode читает JSON-тело запроса, отвергая неизвестные поля, и проверяет его по тегам validate.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %w", service.ErrValidation, err)
	}
	if err := validation.Validate(dst); err != nil {
		return fmt.Errorf("%w: %w", service.ErrValidation, err)
	}
	return nil
}

// fail переводит ошибку сервиса в HTTP-статус. Ошибки 5xx логируются вместе с полями.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		if m, ok := payments.Message(err); ok {
			writeError(w, http.StatusInternalServerError, m)
			return
		}
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
