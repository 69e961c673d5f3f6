package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hims/hims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const claimColumns = `
	id, invoice_id, patient_id, payer_id, claim_reference, status,
	gross_amount, approved_amount, denial_reason, remittance_id,
	submitted_at, status_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*ClaimRecord, error) {
	var rec ClaimRecord
	err := row.Scan(&rec.ID, &rec.InvoiceID, &rec.PatientID, &rec.PayerID,
		&rec.ClaimReference, &rec.Status, &rec.GrossAmount, &rec.ApprovedAmount,
		&rec.DenialReason, &rec.RemittanceID, &rec.SubmittedAt, &rec.StatusAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) collect(rows pgx.Rows) ([]*ClaimRecord, error) {
	defer rows.Close()
	var recs []*ClaimRecord
	for rows.Next() {
		rec, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClaimRecord, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claim_record WHERE id = $1`, id))
}

func (r *repoPG) GetByInvoiceAndPayer(ctx context.Context, invoiceID uuid.UUID, payerID string) (*ClaimRecord, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claim_record
		 WHERE invoice_id = $1 AND payer_id = $2`, invoiceID, payerID))
}

func (r *repoPG) ListByReference(ctx context.Context, claimReference string) ([]*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimColumns+` FROM claim_record WHERE claim_reference = $1`, claimReference)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimColumns+` FROM claim_record
		 WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status) ([]*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimColumns+` FROM claim_record
		 WHERE status = $1 ORDER BY status_at DESC`, status)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) ListStale(ctx context.Context, since time.Time, limit int) ([]*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimColumns+` FROM claim_record
		 WHERE status = $1 AND submitted_at >= $2
		 ORDER BY submitted_at
		 LIMIT $3`, StatusSubmitted, since, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) Create(ctx context.Context, rec *ClaimRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_record (
			id, invoice_id, patient_id, payer_id, claim_reference, status,
			gross_amount, approved_amount, denial_reason, remittance_id,
			submitted_at, status_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())`,
		rec.ID, rec.InvoiceID, rec.PatientID, rec.PayerID, rec.ClaimReference,
		rec.Status, rec.GrossAmount, rec.ApprovedAmount, rec.DenialReason,
		rec.RemittanceID, rec.SubmittedAt, rec.StatusAt)
	return err
}

func (r *repoPG) Update(ctx context.Context, rec *ClaimRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_record SET
			claim_reference = $2, status = $3, gross_amount = $4,
			approved_amount = $5, denial_reason = $6, remittance_id = $7,
			submitted_at = $8, status_at = $9, updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.ClaimReference, rec.Status, rec.GrossAmount,
		rec.ApprovedAmount, rec.DenialReason, rec.RemittanceID,
		rec.SubmittedAt, rec.StatusAt)
	return err
}
