package invoice

// Expected schema:
//
//	CREATE TABLE invoices (
//	    id                      uuid PRIMARY KEY,
//	    created_at              timestamptz NOT NULL,
//	    due_date                date NOT NULL,
//	    price                   numeric(10,2) NOT NULL CHECK (price > 0),
//	    appointment_id          integer NOT NULL UNIQUE,
//	    appointment_date        timestamptz NOT NULL,
//	    appointment_description text NOT NULL DEFAULT '',
//	    patient_rg              text NOT NULL DEFAULT '',
//	    dentist_cro             text NOT NULL DEFAULT ''
//	);
//
// The UNIQUE constraint on appointment_id is what makes the upsert safe even
// if a second writer slips past the per-appointment lock.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const invoiceColumns = `id, created_at, due_date, price::text, appointment_id,
	appointment_date, appointment_description, patient_rg, dentist_cro`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var price string

	err := row.Scan(
		&inv.ID,
		&inv.CreatedAt,
		&inv.DueDate,
		&price,
		&inv.AppointmentID,
		&inv.AppointmentDate,
		&inv.AppointmentDescription,
		&inv.PatientRG,
		&inv.DentistCRO,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	inv.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse stored price %q: %w", price, err)
	}

	return &inv, nil
}

func (s *PgStore) FindByAppointmentID(ctx context.Context, appointmentID int) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE appointment_id = $1
	`, appointmentID)
	return scanInvoice(row)
}

func (s *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id)
	return scanInvoice(row)
}

// Upsert inserts the invoice or, when a row for its appointment id already
// exists, overwrites the enrichment-derived fields in place. id and
// created_at are deliberately absent from the DO UPDATE set, so the stored
// identity and creation timestamp survive replays.
func (s *PgStore) Upsert(ctx context.Context, inv Invoice) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (
			id, created_at, due_date, price, appointment_id,
			appointment_date, appointment_description, patient_rg, dentist_cro
		)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		ON CONFLICT (appointment_id) DO UPDATE SET
			due_date                = EXCLUDED.due_date,
			price                   = EXCLUDED.price,
			appointment_date        = EXCLUDED.appointment_date,
			appointment_description = EXCLUDED.appointment_description,
			patient_rg              = EXCLUDED.patient_rg,
			dentist_cro             = EXCLUDED.dentist_cro
		RETURNING `+invoiceColumns+`
	`,
		inv.ID,
		inv.CreatedAt,
		inv.DueDate,
		inv.Price.String(),
		inv.AppointmentID,
		inv.AppointmentDate,
		inv.AppointmentDescription,
		inv.PatientRG,
		inv.DentistCRO,
	)
	saved, err := scanInvoice(row)
	if err != nil {
		return nil, fmt.Errorf("upsert invoice for appointment %d: %w", inv.AppointmentID, err)
	}
	return saved, nil
}

func (s *PgStore) ListAll(ctx context.Context) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *PgStore) ListByPatientRG(ctx context.Context, patientRG string) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE patient_rg = $1
		ORDER BY created_at DESC
	`, patientRG)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *PgStore) ListByDentistCRO(ctx context.Context, dentistCRO string) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE dentist_cro = $1
		ORDER BY created_at DESC
	`, dentistCRO)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *PgStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
