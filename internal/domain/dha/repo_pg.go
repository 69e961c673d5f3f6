package dha

import (
	"context"
	"errors"

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

type settingsRepoPG struct{ pool *pgxpool.Pool }

func NewSettingsRepoPG(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepoPG{pool: pool}
}

func (r *settingsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *settingsRepoPG) Get(ctx context.Context) (*TenantConfig, error) {
	var c TenantConfig
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT tenant_id, enabled, facility_id, facility_license, api_key, api_secret, mode, updated_at
		FROM dha_settings
		LIMIT 1`).
		Scan(&c.TenantID, &c.Enabled, &c.FacilityID, &c.FacilityLicense,
			&c.APIKey, &c.APISecret, &c.Mode, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *settingsRepoPG) Upsert(ctx context.Context, c *TenantConfig) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dha_settings (tenant_id, enabled, facility_id, facility_license, api_key, api_secret, mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			facility_id = EXCLUDED.facility_id,
			facility_license = EXCLUDED.facility_license,
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			mode = EXCLUDED.mode,
			updated_at = NOW()`,
		c.TenantID, c.Enabled, c.FacilityID, c.FacilityLicense, c.APIKey, c.APISecret, c.Mode)
	return err
}
