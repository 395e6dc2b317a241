package handler

import (
	"net/http"

	"go.uber.org/zap"
)

type checkCustomerRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// CheckCustomer проверяет, есть ли платёжный клиент с указанным email.
func (h *Handler) CheckCustomer(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req checkCustomerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode check customer request")
		return
	}

	res, err := h.service.CheckCustomer(r.Context(), ident, req.Email)
	if err != nil {
		h.fail(w, err, "check customer error", zap.String("userID", ident.UserID))
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"max=256"`
	Email string `json:"email" validate:"omitempty,email"`
}

type customerResponse struct {
	CustomerID string `json:"customerId"`
	Created    *bool  `json:"created,omitempty"`
}

// CreateCustomer создаёт платёжного клиента для текущего пользователя.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createCustomerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode create customer request")
		return
	}

	id, err := h.service.CreateCustomer(r.Context(), ident, req.Name, req.Email)
	if err != nil {
		h.fail(w, err, "create customer error", zap.String("userID", ident.UserID))
		return
	}

	writeJSON(w, http.StatusOK, customerResponse{CustomerID: id})
}

// ProcessNewUser находит или создаёт платёжного клиента текущего пользователя.
func (h *Handler) ProcessNewUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	id, created, err := h.service.EnsureCustomer(r.Context(), ident)
	if err != nil {
		h.fail(w, err, "process new user error", zap.String("userID", ident.UserID))
		return
	}

	writeJSON(w, http.StatusOK, customerResponse{CustomerID: id, Created: &created})
}
