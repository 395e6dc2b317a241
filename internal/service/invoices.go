package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/billing"
	"github.com/zaptasks/zaptasks-api/internal/model"
)

const (
	minBookingHours  = 2
	minBookingPeople = 1

	compensationTimeout = 30 * time.Second
)

// compensation отменяет один выполненный шаг выставления счетов.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga накапливает компенсации выполненных внешних шагов.
type saga struct {
	steps []compensation
}

func (sg *saga) add(name string, undo func(ctx context.Context) error) {
	sg.steps = append(sg.steps, compensation{name: name, undo: undo})
}

// rollback выполняет компенсации в обратном порядке и возвращает все их ошибки.
func (sg *saga) rollback(ctx context.Context) error {
	var result *multierror.Error
	for i := len(sg.steps) - 1; i >= 0; i-- {
		step := sg.steps[i]
		if err := step.undo(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("undo %s: %w", step.name, err))
		}
	}
	return result.ErrorOrNil()
}

// CreateInvoices выставляет пару счетов бронирования: депозит с немедленной оплатой
// и остаток со сроком через 30 дней после даты услуги. При ошибке любого шага
// уже созданные счета удаляются или аннулируются.
func (s *Service) CreateInvoices(ctx context.Context, ident model.Identity, req model.InvoiceRequest) (*model.InvoicePair, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, validationError("invalid amount or customer ID")
	}

	split, err := billing.Split(req.Amount)
	if err != nil {
		return nil, validationError("invalid amount or customer ID")
	}

	draft := req.Draft
	if draft.Hours < minBookingHours {
		return nil, validationError("hours must be at least %d", minBookingHours)
	}
	if draft.People < minBookingPeople {
		return nil, validationError("people must be at least %d", minBookingPeople)
	}

	serviceDate, err := billing.ParseServiceDate(draft.Date)
	if err != nil {
		return nil, validationError("date must be YYYY-MM-DD")
	}

	dueDays := billing.DaysUntilDue(serviceDate, s.now())
	if dueDays < 0 {
		return nil, validationError("service date %s is too far in the past", draft.Date)
	}

	metadata, err := bookingMetadata(ident.UserID, draft, split)
	if err != nil {
		return nil, err
	}

	var sg saga

	deposit, err := s.issueInvoice(ctx, &sg, invoiceParams{
		customerID:  req.CustomerID,
		invoiceType: model.InvoiceTypeDeposit,
		paymentType: model.PaymentTypeDeposit,
		dueDays:     0,
		amount:      split.DepositCents,
		description: lineDescription("Deposit for Service", draft),
		metadata:    metadata,
	})
	if err != nil {
		return nil, s.abort(ctx, &sg, err)
	}

	remainder, err := s.issueInvoice(ctx, &sg, invoiceParams{
		customerID:  req.CustomerID,
		invoiceType: model.InvoiceTypeRemainder,
		paymentType: model.PaymentTypeRemaining,
		dueDays:     dueDays,
		amount:      split.RemainderCents,
		description: lineDescription("Remaining balance for Service", draft),
		metadata:    metadata,
	})
	if err != nil {
		return nil, s.abort(ctx, &sg, err)
	}

	booking := &model.Booking{
		UserID:             ident.UserID,
		CustomerID:         req.CustomerID,
		DepositInvoiceID:   deposit.ID,
		RemainderInvoiceID: remainder.ID,
		DepositStatus:      statusOrOpen(deposit.Status),
		RemainderStatus:    statusOrOpen(remainder.Status),
		Draft:              draft,
		Split:              split,
	}
	if _, err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, s.abort(ctx, &sg, fmt.Errorf("record booking: %w", err))
	}

	// Клиент мог быть найден по email и не иметь связи с пользователем.
	s.saveLink(ctx, ident.UserID, ident.Email, req.CustomerID)

	s.logger.Info("booking invoiced",
		zap.String("userID", ident.UserID),
		zap.String("depositInvoiceID", deposit.ID),
		zap.String("remainderInvoiceID", remainder.ID),
		zap.Int64("totalCents", split.TotalCents),
	)

	return &model.InvoicePair{
		DepositInvoiceID:    deposit.ID,
		DepositInvoiceURL:   deposit.HostedURL,
		RemainderInvoiceID:  remainder.ID,
		RemainderInvoiceURL: remainder.HostedURL,
		TotalAmount:         split.TotalCents,
		DepositAmount:       split.DepositCents,
		RemainingAmount:     split.RemainderCents,
	}, nil
}

type invoiceParams struct {
	customerID  string
	invoiceType model.InvoiceType
	paymentType string
	dueDays     int64
	amount      int64
	description string
	metadata    map[string]string
}

// issueInvoice создаёт, финализирует и отправляет один счёт, затем помечает его платёж.
func (s *Service) issueInvoice(ctx context.Context, sg *saga, p invoiceParams) (*model.Invoice, error) {
	metadata := maps.Clone(p.metadata)
	metadata[model.MetadataInvoiceType] = string(p.invoiceType)

	created, err := s.payments.CreateInvoice(ctx, model.InvoiceDraft{
		CustomerID:   p.customerID,
		DaysUntilDue: p.dueDays,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s invoice: %w", p.invoiceType, err)
	}

	invoiceID := created.ID
	finalized := false
	sg.add(string(p.invoiceType)+" invoice "+invoiceID, func(ctx context.Context) error {
		if finalized {
			return s.payments.VoidInvoice(ctx, invoiceID)
		}
		return s.payments.DeleteDraftInvoice(ctx, invoiceID)
	})

	err = s.payments.AddInvoiceItem(ctx, model.InvoiceItem{
		InvoiceID:   invoiceID,
		CustomerID:  p.customerID,
		Amount:      p.amount,
		Currency:    s.currency,
		Description: p.description,
	})
	if err != nil {
		return nil, fmt.Errorf("add %s invoice item: %w", p.invoiceType, err)
	}

	if _, err := s.payments.FinalizeInvoice(ctx, invoiceID); err != nil {
		return nil, fmt.Errorf("finalize %s invoice: %w", p.invoiceType, err)
	}
	finalized = true

	sent, err := s.payments.SendInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("send %s invoice: %w", p.invoiceType, err)
	}

	if sent.PaymentIntentID == "" {
		s.logger.Warn("finalized invoice has no payment intent", zap.String("invoiceID", invoiceID))
		return sent, nil
	}

	err = s.payments.TagPaymentIntent(ctx, sent.PaymentIntentID, map[string]string{
		model.MetadataInvoiceID:   invoiceID,
		model.MetadataPaymentType: p.paymentType,
	})
	if err != nil {
		return nil, fmt.Errorf("tag %s payment intent: %w", p.invoiceType, err)
	}

	return sent, nil
}

// abort откатывает выполненные шаги и возвращает исходную ошибку.
func (s *Service) abort(ctx context.Context, sg *saga, cause error) error {
	if len(sg.steps) == 0 {
		return cause
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := sg.rollback(cctx); err != nil {
		s.logger.Error("invoice compensation failed",
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return cause
	}

	s.logger.Info("invoice compensation completed",
		zap.Int("steps", len(sg.steps)),
		zap.NamedError("cause", cause),
	)
	return cause
}

func bookingMetadata(userID string, d model.BookingDraft, split model.BookingSplit) (map[string]string, error) {
	services := d.Services
	if services == nil {
		services = []string{}
	}
	encoded, err := json.Marshal(services)
	if err != nil {
		return nil, fmt.Errorf("encode services: %w", err)
	}

	return map[string]string{
		model.MetadataServices:  string(encoded),
		model.MetadataAppUserID: userID,
		"date":                  d.Date,
		"time":                  d.Time,
		"hours":                 strconv.Itoa(d.Hours),
		"people":                strconv.Itoa(d.People),
		"description":           d.Description,
		"address":               d.Address,
		"bringEquipment":        yesNo(d.BringEquipment),
		"totalAmount":           strconv.FormatInt(split.TotalCents, 10),
		"depositAmount":         strconv.FormatInt(split.DepositCents, 10),
		"remainingAmount":       strconv.FormatInt(split.RemainderCents, 10),
	}, nil
}

func lineDescription(prefix string, d model.BookingDraft) string {
	return fmt.Sprintf("%s: %s on %s at %s", prefix, strings.Join(d.Services, ", "), d.Date, d.Time)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func statusOrOpen(st model.InvoiceStatus) model.InvoiceStatus {
	if st == "" {
		return model.InvoiceStatusOpen
	}
	return st
}

// Quote рассчитывает стоимость бронирования и её разбиение на депозит и остаток.
func (s *Service) Quote(hours, people int, bringEquipment bool) (*model.Quote, error) {
	if hours < minBookingHours {
		return nil, validationError("hours must be at least %d", minBookingHours)
	}
	if people < minBookingPeople {
		return nil, validationError("people must be at least %d", minBookingPeople)
	}

	total := billing.BookingTotal(hours, people, bringEquipment)
	split, err := billing.Split(total)
	if err != nil {
		return nil, validationError("invalid booking total")
	}

	return &model.Quote{
		Amount:          total,
		TotalAmount:     split.TotalCents,
		DepositAmount:   split.DepositCents,
		RemainingAmount: split.RemainderCents,
	}, nil
}
