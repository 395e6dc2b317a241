package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

// ParseEvent проверяет подпись события и извлекает из него счёт и его статус.
// Для событий, не относящихся к счетам, InvoiceID остаётся пустым.
func (c *Client) ParseEvent(payload []byte, signature string) (*model.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	res := &model.PaymentEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case "invoice.paid", "invoice.payment_succeeded", "invoice.finalized",
		"invoice.voided", "invoice.marked_uncollectible":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice event %s: %w", event.ID, err)
		}
		res.InvoiceID = inv.ID
		res.Status = model.InvoiceStatus(inv.Status)

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent event %s: %w", event.ID, err)
		}
		if invoiceID := pi.Metadata[model.MetadataInvoiceID]; invoiceID != "" {
			res.InvoiceID = invoiceID
			res.Status = model.InvoiceStatusPaid
		}
	}

	return res, nil
}
