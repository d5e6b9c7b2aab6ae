package invoice

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Store contains all DB interactions needed by the service. It must enforce
// at most one invoice per appointment id even under concurrent upserts.
type Store interface {
	FindByAppointmentID(ctx context.Context, appointmentID int) (*Invoice, error)

	// Upsert creates the invoice when no row exists for its appointment id,
	// otherwise updates that row in place, preserving id and created_at.
	Upsert(ctx context.Context, inv Invoice) (*Invoice, error)

	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListAll(ctx context.Context) ([]Invoice, error)
	ListByPatientRG(ctx context.Context, patientRG string) ([]Invoice, error)
	ListByDentistCRO(ctx context.Context, dentistCRO string) ([]Invoice, error)

	DeleteByID(ctx context.Context, id uuid.UUID) error
}
