package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/payments"
	"github.com/zaptasks/zaptasks-api/internal/repository"
)

const (
	paymentIntentSucceeded = "succeeded"
	reconcileBatchSize     = 100
)

// ConfirmDepositPayment сверяет оплату депозита с платёжной платформой и переносит
// её статус в локальное бронирование. В платёжную платформу ничего не записывается.
func (s *Service) ConfirmDepositPayment(ctx context.Context, invoiceID, intentID string) (*model.PaymentConfirmation, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	intentID = strings.TrimSpace(intentID)
	if invoiceID == "" || intentID == "" {
		return nil, validationError("invoiceId and depositIntentId are required")
	}

	inv, err := s.payments.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, notFoundFromPayments(err)
	}

	pi, err := s.payments.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, notFoundFromPayments(err)
	}

	if inv.PaymentIntentID != pi.ID && pi.Metadata[model.MetadataInvoiceID] != inv.ID {
		return nil, validationError("payment intent %s does not belong to invoice %s", pi.ID, inv.ID)
	}

	status := inv.Status
	if pi.Status == paymentIntentSucceeded {
		status = model.InvoiceStatusPaid
	}

	if err := s.mirrorStatus(ctx, inv.ID, status); err != nil {
		return nil, err
	}

	return &model.PaymentConfirmation{
		InvoiceID: inv.ID,
		Status:    status,
		Paid:      status == model.InvoiceStatusPaid,
	}, nil
}

// HandlePaymentEvent обрабатывает подписанное событие платёжной платформы.
// События без счёта и счета без бронирования игнорируются.
func (s *Service) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.payments.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return err
	}

	if ev.InvoiceID == "" {
		s.logger.Debug("payment event ignored", zap.String("eventID", ev.ID), zap.String("type", ev.Type))
		return nil
	}

	s.logger.Info("payment event received",
		zap.String("eventID", ev.ID),
		zap.String("type", ev.Type),
		zap.String("invoiceID", ev.InvoiceID),
		zap.String("status", string(ev.Status)),
	)

	return s.mirrorStatus(ctx, ev.InvoiceID, ev.Status)
}

// mirrorStatus записывает наблюдаемый статус счёта в бронирование, если переход допустим.
func (s *Service) mirrorStatus(ctx context.Context, invoiceID string, observed model.InvoiceStatus) error {
	booking, err := s.repo.GetBookingByInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			s.logger.Debug("invoice has no local booking", zap.String("invoiceID", invoiceID))
			return nil
		}
		return err
	}

	current, _ := booking.StatusOf(invoiceID)

	changed, err := applyInvoiceStatus(current, observed)
	if err != nil {
		s.logger.Warn("invoice status transition rejected",
			zap.String("invoiceID", invoiceID),
			zap.Error(err),
		)
		return nil
	}
	if !changed {
		return nil
	}

	if err := s.repo.UpdateInvoiceStatus(ctx, invoiceID, observed); err != nil {
		return fmt.Errorf("update invoice %s status: %w", invoiceID, err)
	}
	return nil
}

// SetupRemainingPayment находит платёж остатка по счёту и переводит его в автоматическое списание.
// Если платёж не найден, ничего не изменяется.
func (s *Service) SetupRemainingPayment(ctx context.Context, invoiceID string) (*model.RemainderSetup, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, validationError("invoiceId is required")
	}

	inv, err := s.payments.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, notFoundFromPayments(err)
	}
	if inv.CustomerID == "" {
		return nil, fmt.Errorf("%w: invoice %s has no customer", ErrNotFound, invoiceID)
	}

	intents, err := s.payments.ListPaymentIntents(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}

	var target *model.PaymentIntent
	for i := range intents {
		md := intents[i].Metadata
		if md[model.MetadataInvoiceID] == invoiceID && md[model.MetadataPaymentType] == model.PaymentTypeRemaining {
			target = &intents[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: remaining payment intent for invoice %s", ErrNotFound, invoiceID)
	}

	updated, err := s.payments.SetCaptureMethod(ctx, target.ID, model.CaptureMethodAutomatic)
	if err != nil {
		return nil, err
	}

	return &model.RemainderSetup{
		ClientSecret: updated.ClientSecret,
		Amount:       updated.Amount,
	}, nil
}

// StartInvoiceReconciliation запускает фоновую сверку статусов неоплаченных счетов
// с платёжной платформой на случай пропущенных событий.
func (s *Service) StartInvoiceReconciliation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcileInvoices(ctx)
			}
		}
	}()
}

func (s *Service) reconcileInvoices(ctx context.Context) {
	var afterID int64
	for {
		bookings, err := s.repo.ListPendingBookings(ctx, afterID, reconcileBatchSize)
		if err != nil {
			s.logger.Error("list pending bookings", zap.Error(err))
			return
		}

		for _, b := range bookings {
			afterID = b.ID
			s.reconcileInvoice(ctx, b.DepositInvoiceID, b.DepositStatus)
			s.reconcileInvoice(ctx, b.RemainderInvoiceID, b.RemainderStatus)
		}

		if len(bookings) < reconcileBatchSize || ctx.Err() != nil {
			return
		}
	}
}

func (s *Service) reconcileInvoice(ctx context.Context, invoiceID string, current model.InvoiceStatus) {
	if current != model.InvoiceStatusDraft && current != model.InvoiceStatusOpen {
		return
	}

	inv, err := s.payments.GetInvoice(ctx, invoiceID)
	if err != nil {
		s.logger.Warn("reconcile invoice", zap.String("invoiceID", invoiceID), zap.Error(err))
		return
	}
	if inv.Status == current {
		return
	}

	if err := s.mirrorStatus(ctx, invoiceID, inv.Status); err != nil {
		s.logger.Error("mirror invoice status", zap.String("invoiceID", invoiceID), zap.Error(err))
	}
}
