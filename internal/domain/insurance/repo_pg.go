package insurance

import (
	"context"
	"errors"

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

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordColumns = `
	id, patient_id, provider_name, policy_number, coverage_type, plan_name,
	network_tier, effective_date, expiry_date, coverage_percentage, copay_amount,
	annual_deductible, annual_copay_cap, is_active, is_primary,
	verification_source, verified_at, created_at, updated_at`

func scanRecord(row pgx.Row) (*InsuranceRecord, error) {
	var rec InsuranceRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.ProviderName, &rec.PolicyNumber,
		&rec.CoverageType, &rec.PlanName, &rec.NetworkTier, &rec.EffectiveDate,
		&rec.ExpiryDate, &rec.CoveragePercentage, &rec.CopayAmount,
		&rec.AnnualDeductible, &rec.AnnualCopayCap, &rec.IsActive, &rec.IsPrimary,
		&rec.VerificationSource, &rec.VerifiedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM insurance_record WHERE id = $1`, id))
}

func (r *recordRepoPG) GetActivePrimary(ctx context.Context, patientID uuid.UUID) (*InsuranceRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM insurance_record
		 WHERE patient_id = $1 AND is_active AND is_primary`, patientID))
}

func (r *recordRepoPG) GetByPolicyNumber(ctx context.Context, patientID uuid.UUID, policyNumber string) (*InsuranceRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM insurance_record
		 WHERE patient_id = $1 AND policy_number = $2
		 ORDER BY updated_at DESC LIMIT 1`, patientID, policyNumber))
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*InsuranceRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM insurance_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM insurance_record
		 WHERE patient_id = $1
		 ORDER BY is_primary DESC, updated_at DESC
		 LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*InsuranceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

func (r *recordRepoPG) Create(ctx context.Context, rec *InsuranceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO insurance_record (
			id, patient_id, provider_name, policy_number, coverage_type, plan_name,
			network_tier, effective_date, expiry_date, coverage_percentage, copay_amount,
			annual_deductible, annual_copay_cap, is_active, is_primary,
			verification_source, verified_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW())`,
		rec.ID, rec.PatientID, rec.ProviderName, rec.PolicyNumber, rec.CoverageType,
		rec.PlanName, rec.NetworkTier, rec.EffectiveDate, rec.ExpiryDate,
		rec.CoveragePercentage, rec.CopayAmount, rec.AnnualDeductible, rec.AnnualCopayCap,
		rec.IsActive, rec.IsPrimary, rec.VerificationSource, rec.VerifiedAt)
	return err
}

func (r *recordRepoPG) Update(ctx context.Context, rec *InsuranceRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_record SET
			provider_name = $2, policy_number = $3, coverage_type = $4, plan_name = $5,
			network_tier = $6, effective_date = $7, expiry_date = $8,
			coverage_percentage = $9, copay_amount = $10,
			annual_deductible = $11, annual_copay_cap = $12,
			is_active = $13, is_primary = $14,
			verification_source = $15, verified_at = $16, updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.ProviderName, rec.PolicyNumber, rec.CoverageType, rec.PlanName,
		rec.NetworkTier, rec.EffectiveDate, rec.ExpiryDate,
		rec.CoveragePercentage, rec.CopayAmount, rec.AnnualDeductible, rec.AnnualCopayCap,
		rec.IsActive, rec.IsPrimary, rec.VerificationSource, rec.VerifiedAt)
	return err
}

func (r *recordRepoPG) DemotePrimary(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_record SET is_primary = FALSE, updated_at = NOW()
		WHERE patient_id = $1 AND is_primary`, patientID)
	return err
}
