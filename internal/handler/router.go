package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/zaptasks/zaptasks-api/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса ZapTasks.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Post("/webhooks/stripe", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		if h.rateLimiter != nil {
			r.Use(h.rateLimiter.Middleware)
		}

		r.Use(h.authMiddleware.Middleware)

		r.Post("/check-customer", h.CheckCustomer)
		r.Post("/create-customer", h.CreateCustomer)
		r.Post("/process-new-user", h.ProcessNewUser)

		r.Post("/quote", h.Quote)
		r.Post("/create-invoice", h.CreateInvoice)
		r.Get("/get-invoice/{invoiceId}", h.GetInvoice)
		r.Get("/get-payment-intent/{invoiceId}", h.GetPaymentIntent)
		r.Get("/get-unpaid-remainder-invoices", h.GetUnpaidInvoices)
		r.Post("/setup-remaining-payment", h.SetupRemainingPayment)
		r.Post("/update-invoice-deposit-paid", h.UpdateInvoiceDepositPaid)

		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{taskId}", h.GetTask)
		r.Post("/rate-invoice", h.RateTask)
		r.Post("/zapper-applications", h.SubmitZapperApplication)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
