package invoice

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odontocloud/invoice-service/internal/scheduling"
)

// DueDateOffsetDays is how many calendar days after the appointment the
// invoice falls due.
const DueDateOffsetDays = 5

// DefaultPrice is charged when neither the event nor an existing invoice
// supplies a positive price.
var DefaultPrice = decimal.RequireFromString("99.00")

type Invoice struct {
	ID                     uuid.UUID
	CreatedAt              time.Time
	DueDate                time.Time
	Price                  decimal.Decimal
	AppointmentID          int
	AppointmentDate        time.Time
	AppointmentDescription string
	PatientRG              string
	DentistCRO             string
}

// AppointmentEvent is the queue-delivered message describing an appointment's
// current state. The event snapshot may be partial or stale; only its id and
// (optionally) its price feed the invoice, everything else comes from the
// enrichment call.
type AppointmentEvent struct {
	ID          int                `json:"id"`
	Description string             `json:"description"`
	DateAndTime string             `json:"dateAndTime"`
	DentistCRO  string             `json:"dentistCRO"`
	PatientRG   string             `json:"patientRG"`
	Price       decimal.Decimal    `json:"price"`
	Dentist     scheduling.Dentist `json:"dentist"`
	Patient     scheduling.Patient `json:"patient"`
}

var ErrInvalidEvent = errors.New("invalid appointment event")

// Validate rejects events that cannot possibly be reconciled.
func (e AppointmentEvent) Validate() error {
	if e.ID <= 0 {
		return fmt.Errorf("%w: missing appointment id", ErrInvalidEvent)
	}
	if e.DateAndTime != "" {
		if _, err := time.Parse(scheduling.DateTimeLayout, e.DateAndTime); err != nil {
			return fmt.Errorf("%w: bad dateAndTime %q", ErrInvalidEvent, e.DateAndTime)
		}
	}
	return nil
}
