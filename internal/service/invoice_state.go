package service

import (
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

const (
	triggerFinalize          = "finalize"
	triggerPay               = "pay"
	triggerVoid              = "void"
	triggerMarkUncollectible = "mark_uncollectible"
	triggerStay              = "stay"
	triggerInvalid           = "invalid"
)

// ErrInvalidTransition возвращается для перехода статуса счёта, который платёжная платформа не допускает.
var ErrInvalidTransition = errors.New("invalid invoice status transition")

func newInvoiceMachine(current model.InvoiceStatus) *stateless.StateMachine {
	machine := stateless.NewStateMachine(current)

	machine.Configure(model.InvoiceStatusDraft).
		Permit(triggerFinalize, model.InvoiceStatusOpen).
		PermitReentry(triggerStay)

	machine.Configure(model.InvoiceStatusOpen).
		Permit(triggerPay, model.InvoiceStatusPaid).
		Permit(triggerVoid, model.InvoiceStatusVoid).
		Permit(triggerMarkUncollectible, model.InvoiceStatusUncollectible).
		PermitReentry(triggerStay)

	machine.Configure(model.InvoiceStatusUncollectible).
		Permit(triggerPay, model.InvoiceStatusPaid).
		Permit(triggerVoid, model.InvoiceStatusVoid).
		PermitReentry(triggerStay)

	machine.Configure(model.InvoiceStatusPaid).
		PermitReentry(triggerStay)

	machine.Configure(model.InvoiceStatusVoid).
		PermitReentry(triggerStay)

	return machine
}

// applyInvoiceStatus проверяет переход локального статуса к наблюдаемому в платёжной платформе.
// Возвращает true, если статус нужно записать.
func applyInvoiceStatus(current, observed model.InvoiceStatus) (bool, error) {
	machine := newInvoiceMachine(current)

	if err := machine.Fire(invoiceTrigger(current, observed)); err != nil {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, observed)
	}

	return current != observed, nil
}

func invoiceTrigger(current, observed model.InvoiceStatus) string {
	if current == observed {
		return triggerStay
	}

	switch observed {
	case model.InvoiceStatusOpen:
		return triggerFinalize
	case model.InvoiceStatusPaid:
		return triggerPay
	case model.InvoiceStatusVoid:
		return triggerVoid
	case model.InvoiceStatusUncollectible:
		return triggerMarkUncollectible
	}

	return triggerInvalid
}
