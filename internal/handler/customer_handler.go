package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// CustomerHandler serves the customer book.
type CustomerHandler struct {
	customers *service.CustomerService
	guard     *security.Guard
	logger    *slog.Logger
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customers *service.CustomerService, guard *security.Guard, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{customers: customers, guard: guard, logger: logger}
}

// Create handles POST /api/customers
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.CustomerInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	customer, err := h.customers.Create(r.Context(), tc, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

// List handles GET /api/customers with optional ?phone= search.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if phone := r.URL.Query().Get("phone"); phone != "" {
		matches, err := h.customers.SearchByPhone(r.Context(), tc, phone)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
		return
	}

	customers, err := h.customers.List(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// Get handles GET /api/customers/{id}
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	customer, err := h.customers.Get(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

// Update handles PATCH /api/customers/{id}
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.CustomerInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	customer, err := h.customers.Update(r.Context(), tc, r.PathValue("id"), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}
