package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	redisclient "github.com/odontocloud/invoice-service/internal/redis"
	"github.com/odontocloud/invoice-service/internal/scheduling"
)

// Outcome tells the event consumer what to do with the message that produced
// it: acknowledge on Upserted and Dropped, requeue on Retry.
type Outcome int

const (
	OutcomeUpserted Outcome = iota
	OutcomeDropped
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpserted:
		return "upserted"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

type Service struct {
	store   Store
	fetcher scheduling.Fetcher
	locker  redisclient.Locker
	logger  *logrus.Logger
}

func NewService(store Store, fetcher scheduling.Fetcher, locker redisclient.Locker, logger *logrus.Logger) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		locker:  locker,
		logger:  logger,
	}
}

// Reconcile drives one appointment event through lookup, enrichment and
// upsert. The whole span runs under a per-appointment lock so deliveries for
// the same appointment are strictly serialized; deliveries for different
// appointments proceed in parallel.
//
// Replaying the same event any number of times converges to a single invoice
// with identical content: last processed wins.
func (s *Service) Reconcile(ctx context.Context, event AppointmentEvent) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return OutcomeDropped, err
	}

	// Retry is the right outcome whenever the critical section never runs:
	// the lock is held by another worker, or Redis itself is unreachable.
	out := OutcomeRetry
	err := s.locker.WithAppointmentLock(ctx, event.ID, func(lockCtx context.Context) error {
		var innerErr error
		out, innerErr = s.reconcileLocked(lockCtx, event)
		return innerErr
	})
	return out, err
}

func (s *Service) reconcileLocked(ctx context.Context, event AppointmentEvent) (Outcome, error) {
	existing, err := s.store.FindByAppointmentID(ctx, event.ID)
	if err != nil && !errors.Is(err, ErrInvoiceNotFound) {
		return OutcomeRetry, fmt.Errorf("lookup invoice: %w", err)
	}

	appt, err := s.fetcher.FetchAppointment(ctx, event.ID)
	if err != nil {
		return classifyEnrichmentFailure(err), fmt.Errorf("enrich appointment %d: %w", event.ID, err)
	}

	inv, err := s.buildInvoice(existing, event, appt)
	if err != nil {
		return OutcomeDropped, err
	}

	saved, err := s.store.Upsert(ctx, *inv)
	if err != nil {
		return OutcomeRetry, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id":     saved.ID,
		"appointment_id": saved.AppointmentID,
		"due_date":       saved.DueDate.Format("2006-01-02"),
		"price":          saved.Price.String(),
		"created":        existing == nil,
	}).Info("invoice reconciled")

	return OutcomeUpserted, nil
}

// buildInvoice applies the merge policy: identity and creation timestamp come
// from the existing row when there is one, the price is sticky across
// updates, and every other field is overwritten from the fetched appointment.
func (s *Service) buildInvoice(existing *Invoice, event AppointmentEvent, appt *scheduling.Appointment) (*Invoice, error) {
	apptDate, err := appt.StartsAt()
	if err != nil {
		return nil, fmt.Errorf("%w: appointment %d has bad dateAndTime %q",
			scheduling.ErrMalformedResponse, appt.ID, appt.DateAndTime)
	}

	inv := Invoice{
		AppointmentID:          appt.ID,
		AppointmentDate:        apptDate,
		DueDate:                apptDate.AddDate(0, 0, DueDateOffsetDays),
		AppointmentDescription: appt.Description,
		PatientRG:              appt.PatientDocument(),
		DentistCRO:             appt.DentistLicense(),
	}

	if existing != nil {
		inv.ID = existing.ID
		inv.CreatedAt = existing.CreatedAt
		inv.Price = existing.Price
	} else {
		inv.ID = uuid.New()
		inv.CreatedAt = time.Now()
		inv.Price = pickPrice(event.Price)
	}

	return &inv, nil
}

func pickPrice(eventPrice decimal.Decimal) decimal.Decimal {
	if eventPrice.IsPositive() {
		return eventPrice
	}
	return DefaultPrice
}

func classifyEnrichmentFailure(err error) Outcome {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		// No invoice may reference a nonexistent appointment.
		return OutcomeDropped
	case errors.Is(err, scheduling.ErrMalformedResponse):
		return OutcomeDropped
	default:
		// Unavailable scheduling service, unreachable identity provider and
		// rejected credentials all leave the message on the queue.
		return OutcomeRetry
	}
}

// The operations below back the REST API.

func (s *Service) ListAll(ctx context.Context) ([]Invoice, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) ListByPatientRG(ctx context.Context, patientRG string) ([]Invoice, error) {
	return s.store.ListByPatientRG(ctx, patientRG)
}

func (s *Service) ListByDentistCRO(ctx context.Context, dentistCRO string) ([]Invoice, error) {
	return s.store.ListByDentistCRO(ctx, dentistCRO)
}

// Create builds an invoice for the given appointment on request of an API
// caller, enriching from the scheduling service exactly like the queue path.
func (s *Service) Create(ctx context.Context, appointmentID int, price decimal.Decimal) (*Invoice, error) {
	event := AppointmentEvent{ID: appointmentID, Price: price}

	existing, err := s.store.FindByAppointmentID(ctx, appointmentID)
	if err != nil && !errors.Is(err, ErrInvoiceNotFound) {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}

	appt, err := s.fetcher.FetchAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	inv, err := s.buildInvoice(existing, event, appt)
	if err != nil {
		return nil, err
	}
	return s.store.Upsert(ctx, *inv)
}

// Update re-enriches the invoice's appointment and overwrites the derived
// fields. A positive price in the request replaces the stored one.
func (s *Service) Update(ctx context.Context, id uuid.UUID, appointmentID int, price decimal.Decimal) (*Invoice, error) {
	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointmentID != 0 && appointmentID != existing.AppointmentID {
		return nil, fmt.Errorf("%w: invoice %s does not belong to appointment %d",
			ErrInvoiceNotFound, id, appointmentID)
	}

	appt, err := s.fetcher.FetchAppointment(ctx, existing.AppointmentID)
	if err != nil {
		return nil, err
	}

	inv, err := s.buildInvoice(existing, AppointmentEvent{ID: existing.AppointmentID}, appt)
	if err != nil {
		return nil, err
	}
	if price.IsPositive() {
		inv.Price = price
	}
	return s.store.Upsert(ctx, *inv)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteByID(ctx, id)
}
