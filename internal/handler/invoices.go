package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

type createInvoiceRequest struct {
	Amount         float64  `json:"amount"`
	CustomerID     string   `json:"customerId"`
	Services       []string `json:"services" validate:"dive,required,max=200"`
	Date           string   `json:"date" validate:"servicedate"`
	Time           string   `json:"time" validate:"max=50"`
	Hours          int      `json:"hours"`
	People         int      `json:"people"`
	Description    string   `json:"description" validate:"max=2000"`
	Address        string   `json:"address" validate:"max=500"`
	BringEquipment bool     `json:"bringEquipment"`
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty" validate:"omitempty,email"`
}

// CreateInvoice выставляет счета депозита и остатка за бронирование.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode create invoice request")
		return
	}

	// Email нужен для связи пользователя с клиентом, если в сессии его нет.
	if ident.Email == "" {
		ident.Email = req.Email
	}

	pair, err := h.service.CreateInvoices(r.Context(), ident, model.InvoiceRequest{
		Amount:     req.Amount,
		CustomerID: req.CustomerID,
		Draft: model.BookingDraft{
			Services:       req.Services,
			Date:           req.Date,
			Time:           req.Time,
			Hours:          req.Hours,
			People:         req.People,
			Description:    req.Description,
			Address:        req.Address,
			BringEquipment: req.BringEquipment,
		},
	})
	if err != nil {
		h.fail(w, err, "create invoice error",
			zap.String("userID", ident.UserID), zap.String("customerID", req.CustomerID))
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type quoteRequest struct {
	Hours          int  `json:"hours"`
	People         int  `json:"people"`
	BringEquipment bool `json:"bringEquipment"`
}

// Quote рассчитывает стоимость бронирования.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode quote request")
		return
	}

	q, err := h.service.Quote(req.Hours, req.People, req.BringEquipment)
	if err != nil {
		h.fail(w, err, "quote error")
		return
	}

	writeJSON(w, http.StatusOK, q)
}

type unpaidInvoicesResponse struct {
	Invoices []model.UnpaidInvoice `json:"invoices"`
}

// GetUnpaidInvoices возвращает открытые счета текущего пользователя.
func (h *Handler) GetUnpaidInvoices(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	invoices, err := h.service.ListUnpaidInvoices(r.Context(), ident)
	if err != nil {
		h.fail(w, err, "list unpaid invoices error", zap.String("userID", ident.UserID))
		return
	}

	if invoices == nil {
		invoices = []model.UnpaidInvoice{}
	}
	writeJSON(w, http.StatusOK, unpaidInvoicesResponse{Invoices: invoices})
}

// GetInvoice возвращает счёт вместе с его платежом.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceId")

	details, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, err, "get invoice error", zap.String("invoiceID", invoiceID))
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// GetPaymentIntent возвращает счёт и секрет его платежа для оплаты на клиенте.
func (h *Handler) GetPaymentIntent(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceId")

	checkout, err := h.service.GetInvoiceClientSecret(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, err, "get payment intent error", zap.String("invoiceID", invoiceID))
		return
	}

	writeJSON(w, http.StatusOK, checkout)
}

type setupRemainingRequest struct {
	InvoiceID string `json:"invoiceId" validate:"required"`
}

// SetupRemainingPayment готовит платёж остатка к оплате.
func (h *Handler) SetupRemainingPayment(w http.ResponseWriter, r *http.Request) {
	var req setupRemainingRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode setup remaining payment request")
		return
	}

	res, err := h.service.SetupRemainingPayment(r.Context(), req.InvoiceID)
	if err != nil {
		h.fail(w, err, "setup remaining payment error", zap.String("invoiceID", req.InvoiceID))
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type depositPaidRequest struct {
	InvoiceID       string `json:"invoiceId" validate:"required"`
	DepositIntentID string `json:"depositIntentId" validate:"required"`
}

// UpdateInvoiceDepositPaid сверяет оплату депозита с платёжной платформой.
func (h *Handler) UpdateInvoiceDepositPaid(w http.ResponseWriter, r *http.Request) {
	var req depositPaidRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode deposit paid request")
		return
	}

	res, err := h.service.ConfirmDepositPayment(r.Context(), req.InvoiceID, req.DepositIntentID)
	if err != nil {
		h.fail(w, err, "confirm deposit payment error",
			zap.String("invoiceID", req.InvoiceID), zap.String("intentID", req.DepositIntentID))
		return
	}

	writeJSON(w, http.StatusOK, res)
}
