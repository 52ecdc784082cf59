package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const recordColumns = `id, appointment_id, patient_id, subjective, objective, assessment, plan,
	cost, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := row.Scan(
		&rec.ID,
		&rec.AppointmentID,
		&rec.PatientID,
		&rec.Subjective,
		&rec.Objective,
		&rec.Assessment,
		&rec.Plan,
		&rec.Cost,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID,
		&inv.AppointmentID,
		&inv.Amount,
		&inv.Status,
		&inv.IssueDate,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *PgRepository) GetAppointmentPatient(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	var patientID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT patient_id FROM appointments WHERE id = $1
	`, appointmentID).Scan(&patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, booking.ErrAppointmentNotFound
		}
		return uuid.Nil, err
	}
	return patientID, nil
}

func (r *PgRepository) UpsertMedicalRecord(ctx context.Context, appointmentID, patientID uuid.UUID, fields RecordFields) (*MedicalRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO medical_records
			(id, appointment_id, patient_id, subjective, objective, assessment, plan, cost,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET subjective = EXCLUDED.subjective,
		    objective  = EXCLUDED.objective,
		    assessment = EXCLUDED.assessment,
		    plan       = EXCLUDED.plan,
		    cost       = EXCLUDED.cost,
		    updated_at = now()
		RETURNING `+recordColumns+`
	`, uuid.New(), appointmentID, patientID,
		fields.Subjective, fields.Objective, fields.Assessment, fields.Plan, fields.Cost)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("upsert medical record: %w", err)
	}

	// Write-once back-reference; a no-op on every attach after the first.
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET medical_record_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND medical_record_id IS NULL
	`, appointmentID, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("link medical record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PgRepository) GetRecordByAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM medical_records
		WHERE appointment_id = $1
	`, appointmentID)
	return scanRecord(row)
}

func (r *PgRepository) ListRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]MedicalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT mr.id, mr.appointment_id, mr.patient_id, mr.subjective, mr.objective,
		       mr.assessment, mr.plan, mr.cost, mr.created_at, mr.updated_at
		FROM medical_records mr
		JOIN appointments a ON a.id = mr.appointment_id
		WHERE mr.patient_id = $1
		ORDER BY a.start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateInvoice(ctx context.Context, appointmentID uuid.UUID, amount decimal.Decimal, status InvoiceStatus, issueDate time.Time) (*Invoice, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (id, appointment_id, amount, status, issue_date, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, appointment_id, amount, status, issue_date, created_at
	`, uuid.New(), appointmentID, amount, status, issueDate)

	inv, err := scanInvoice(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrInvoiceExists
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET invoice_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND invoice_id IS NULL
	`, appointmentID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("link invoice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PgRepository) GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, amount, status, issue_date, created_at
		FROM invoices
		WHERE appointment_id = $1
	`, appointmentID)
	return scanInvoice(row)
}

func (r *PgRepository) UpdateInvoiceStatus(ctx context.Context, appointmentID uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE invoices
		SET status = $3
		WHERE appointment_id = $1
		  AND status = $2
		RETURNING id, appointment_id, amount, status, issue_date, created_at
	`, appointmentID, from, to)
	return scanInvoice(row)
}
