package billing

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

// ReadRepoPG exposes the billing rows other modules consume: invoices with
// their line items, and copay totals for deductible accumulation.
type ReadRepoPG struct{ pool *pgxpool.Pool }

func NewReadRepoPG(pool *pgxpool.Pool) *ReadRepoPG {
	return &ReadRepoPG{pool: pool}
}

func (r *ReadRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *ReadRepoPG) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, invoice_number, payer_id, member_id, encounter_type,
		       encounter_start, encounter_end, primary_diagnosis, secondary_diagnoses,
		       total_amount, currency, status, created_at
		FROM invoice WHERE id = $1`, id).
		Scan(&inv.ID, &inv.PatientID, &inv.InvoiceNumber, &inv.PayerID, &inv.MemberID,
			&inv.EncounterType, &inv.EncounterStart, &inv.EncounterEnd,
			&inv.PrimaryDiagnosis, &inv.SecondaryDiagnoses,
			&inv.TotalAmount, &inv.Currency, &inv.Status, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *ReadRepoPG) GetLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, code, description, quantity, unit_price, net_amount, service_date
		FROM invoice_line_item
		WHERE invoice_id = $1
		ORDER BY service_date, code`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*InvoiceLineItem
	for rows.Next() {
		var it InvoiceLineItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Code, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.NetAmount, &it.ServiceDate); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *ReadRepoPG) CopayTotalBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM copay_payment
		WHERE patient_id = $1 AND paid_at >= $2 AND paid_at <= $3`,
		patientID, from, to).Scan(&total)
	return total, err
}
