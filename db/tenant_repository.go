package db

import (
	"context"
	"fmt"

	"livetix/entities"
)

type TenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) TenantRepository {
	if db == nil {
		panic("db is nil")
	}
	return TenantRepository{
		db: db,
	}
}

func (r TenantRepository) Create(ctx context.Context, tenant entities.Tenant) error {
	_, err := r.db.Conn.NamedExecContext(ctx, `
		INSERT INTO
			tenants (tenant_id, slug, name)
		VALUES
			(:tenant_id, :slug, :name)
	`, tenant)
	if isErrorUniqueViolation(err) {
		return entities.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("could not create tenant: %w", err)
	}

	return nil
}

func (r TenantRepository) BySlug(ctx context.Context, slug string) (entities.Tenant, error) {
	var tenant entities.Tenant
	err := r.db.Conn.GetContext(ctx, &tenant, `
		SELECT tenant_id, slug, name, created_at FROM tenants WHERE slug = $1
	`, slug)
	if isNoRows(err) {
		return entities.Tenant{}, entities.ErrTenantNotFound
	}
	if err != nil {
		return entities.Tenant{}, fmt.Errorf("could not get tenant %s: %w", slug, err)
	}

	return tenant, nil
}
