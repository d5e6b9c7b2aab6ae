package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odontocloud/invoice-service/internal/invoice"
	"github.com/odontocloud/invoice-service/internal/scheduling"
)

type invoiceHandlers struct {
	svc      *invoice.Service
	validate *validator.Validate
}

func newInvoiceHandlers(svc *invoice.Service) *invoiceHandlers {
	return &invoiceHandlers{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *invoiceHandlers) list(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponses(invoices))
}

func (h *invoiceHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInvoiceID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		handleInvoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(*inv))
}

func (h *invoiceHandlers) listByPatient(w http.ResponseWriter, r *http.Request) {
	patientRG := chi.URLParam(r, "patientRG")

	invoices, err := h.svc.ListByPatientRG(r.Context(), patientRG)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponses(invoices))
}

func (h *invoiceHandlers) listByDentist(w http.ResponseWriter, r *http.Request) {
	dentistCRO := chi.URLParam(r, "dentistCRO")

	invoices, err := h.svc.ListByDentistCRO(r.Context(), dentistCRO)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponses(invoices))
}

func (h *invoiceHandlers) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Create(r.Context(), req.AppointmentID, req.Price)
	if err != nil {
		handleInvoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(*inv))
}

func (h *invoiceHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInvoiceID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Update(r.Context(), id, req.AppointmentID, req.Price)
	if err != nil {
		handleInvoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(*inv))
}

func (h *invoiceHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInvoiceID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		handleInvoiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *invoiceHandlers) decodeRequest(w http.ResponseWriter, r *http.Request) (InvoiceRequest, bool) {
	var req InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return req, false
	}
	return req, true
}

func parseInvoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_invoice_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleInvoiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invoice.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found",
			"appointment's ID provided was not found, please check the ID provided")
	case errors.Is(err, scheduling.ErrServiceUnavailable):
		writeError(w, http.StatusBadGateway, "scheduling_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, "scheduling_bad_response", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
