package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/models"
)

// PostgresClient reads and writes the same tables directly through gorm.
// Used when the portal runs next to the database instead of behind PostgREST.
type PostgresClient struct {
	db *gorm.DB
}

func NewPostgresClient(db *gorm.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

func (p *PostgresClient) Name() string { return config.DriverPostgres }

// Migrate creates or updates the tenant and client tables
func (p *PostgresClient) Migrate() error {
	return p.db.AutoMigrate(&models.TenantRow{}, &models.ClientRow{})
}

func (p *PostgresClient) Select(ctx context.Context, table string, q Query, dest interface{}) error {
	if err := validateQuery(table, q.Filters, q.OrderBy); err != nil {
		return err
	}

	tx := where(p.db.WithContext(ctx).Table(table), q.Filters)
	if q.OrderBy != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if err := tx.Find(dest).Error; err != nil {
		return fmt.Errorf("postgres select %s: %w", table, err)
	}
	return nil
}

func (p *PostgresClient) Insert(ctx context.Context, table string, row interface{}) error {
	if err := validateIdent(table); err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return fmt.Errorf("postgres insert %s: %w", table, err)
	}
	return nil
}

func (p *PostgresClient) Update(ctx context.Context, table string, filters []Filter, patch map[string]interface{}) error {
	if err := validateQuery(table, filters, ""); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(patch))
	for col, v := range patch {
		if err := validateIdent(col); err != nil {
			return err
		}
		// jsonb columns are written as text
		if raw, ok := v.(json.RawMessage); ok {
			v = string(raw)
		}
		values[col] = v
	}

	res := where(p.db.WithContext(ctx).Table(table), filters).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("postgres update %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("postgres update %s: %w", table, ErrNoRows)
	}
	return nil
}

func (p *PostgresClient) Delete(ctx context.Context, table string, filters []Filter) error {
	if err := validateQuery(table, filters, ""); err != nil {
		return err
	}
	model, err := rowModel(table)
	if err != nil {
		return err
	}
	res := where(p.db.WithContext(ctx).Table(table), filters).Delete(model)
	if res.Error != nil {
		return fmt.Errorf("postgres delete %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("postgres delete %s: %w", table, ErrNoRows)
	}
	return nil
}

func where(tx *gorm.DB, filters []Filter) *gorm.DB {
	for _, f := range filters {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: f.Value})
	}
	return tx
}

func rowModel(table string) (interface{}, error) {
	switch table {
	case TableTenants:
		return &models.TenantRow{}, nil
	case TableClients:
		return &models.ClientRow{}, nil
	}
	return nil, fmt.Errorf("%w: unknown table %q", ErrInvalidIdentifier, table)
}
