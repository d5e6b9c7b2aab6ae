package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odontocloud/invoice-service/internal/invoice"
)

type InvoiceRequest struct {
	AppointmentID int             `json:"appointmentId" validate:"required,gt=0"`
	Price         decimal.Decimal `json:"price" validate:"omitempty"`
}

type InvoiceResponse struct {
	ID                     uuid.UUID       `json:"id"`
	CreatedAt              time.Time       `json:"createdAt"`
	DueDate                string          `json:"dueDate"`
	Price                  decimal.Decimal `json:"price"`
	AppointmentID          int             `json:"appointmentId"`
	AppointmentDate        time.Time       `json:"appointmentDate"`
	AppointmentDescription string          `json:"appointmentDescription"`
	PatientRG              string          `json:"patientRG"`
	DentistCRO             string          `json:"dentistCRO"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toInvoiceResponse(inv invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:                     inv.ID,
		CreatedAt:              inv.CreatedAt,
		DueDate:                inv.DueDate.Format("2006-01-02"),
		Price:                  inv.Price,
		AppointmentID:          inv.AppointmentID,
		AppointmentDate:        inv.AppointmentDate,
		AppointmentDescription: inv.AppointmentDescription,
		PatientRG:              inv.PatientRG,
		DentistCRO:             inv.DentistCRO,
	}
}

func toInvoiceResponses(invs []invoice.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvoiceResponse(inv))
	}
	return out
}
