package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/identity"
	"github.com/ashita-ai/jobwatch/internal/model"
)

const companyColumns = `id, user_id, company_name, employer_name, sources, source_priority, fetch_mode, created_at, updated_at`

// ListCompanies returns the user's companies ordered by name.
func (db *DB) ListCompanies(ctx context.Context, userID string) ([]model.Company, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE user_id = $1 ORDER BY lower(company_name)`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list companies: %w", err)
	}
	defer rows.Close()

	out := []model.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCompany returns one company of the user.
func (db *DB) GetCompany(ctx context.Context, userID string, id int64) (model.Company, error) {
	c, err := getCompany(ctx, db.pool, userID, id, false)
	if err != nil {
		return model.Company{}, err
	}
	return c, nil
}

// UpsertCompany creates a company or, when one with the same name (case
// insensitive) exists, merges the incoming sources into it by source key and
// replaces the other fields.
func (db *DB) UpsertCompany(ctx context.Context, c model.Company) (model.Company, error) {
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	if err := c.Validate(); err != nil {
		return model.Company{}, err
	}
	if c.FetchMode == "" {
		c.FetchMode = model.FetchAll
	}
	if c.SourcePriority == nil {
		c.SourcePriority = []model.SourceType{}
	}

	var out model.Company
	err := WithRetry(ctx, keyTxRetries, keyTxBaseDelay, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin company tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		existing, err := scanCompany(tx.QueryRow(ctx,
			`SELECT `+companyColumns+` FROM companies
			 WHERE user_id = $1 AND lower(company_name) = lower($2)
			 FOR UPDATE`, c.UserID, c.CompanyName))
		now := time.Now().UTC()
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			sources := identity.MergeSources(nil, c.Sources)
			out, err = scanCompany(tx.QueryRow(ctx,
				`INSERT INTO companies (user_id, company_name, employer_name, sources, source_priority, fetch_mode, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
				 RETURNING `+companyColumns,
				c.UserID, c.CompanyName, c.EmployerName, sources, c.SourcePriority, string(c.FetchMode), now))
			if err != nil {
				return fmt.Errorf("storage: insert company: %w", err)
			}
		case err != nil:
			return fmt.Errorf("storage: lock company: %w", err)
		default:
			sources := identity.MergeSources(existing.Sources, c.Sources)
			out, err = scanCompany(tx.QueryRow(ctx,
				`UPDATE companies SET company_name = $2, employer_name = $3, sources = $4,
				     source_priority = $5, fetch_mode = $6, updated_at = $7
				 WHERE id = $1
				 RETURNING `+companyColumns,
				existing.ID, c.CompanyName, c.EmployerName, sources, c.SourcePriority, string(c.FetchMode), now))
			if err != nil {
				return fmt.Errorf("storage: update company: %w", err)
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return model.Company{}, err
	}
	return out, nil
}

// UpsertSource replaces the company source with the same source key, or
// appends it.
func (db *DB) UpsertSource(ctx context.Context, userID string, companyID int64, src model.Source) (model.Company, error) {
	if err := src.Validate(); err != nil {
		return model.Company{}, err
	}
	return db.updateSources(ctx, userID, companyID, func(sources []model.Source) ([]model.Source, error) {
		return identity.UpsertBy(sources, src, identity.SourceKey), nil
	})
}

// RemoveSource drops the source whose key equals sourceKey. ErrNotFound is
// returned when no source matches.
func (db *DB) RemoveSource(ctx context.Context, userID string, companyID int64, sourceKey string) (model.Company, error) {
	return db.updateSources(ctx, userID, companyID, func(sources []model.Source) ([]model.Source, error) {
		out, removed := identity.RemoveBy(sources, sourceKey, identity.SourceKey)
		if !removed {
			return nil, fmt.Errorf("storage: source %s: %w", sourceKey, ErrNotFound)
		}
		return out, nil
	})
}

// DeleteCompany removes a company and its sources.
func (db *DB) DeleteCompany(ctx context.Context, userID string, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM companies WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("storage: delete company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: company %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) updateSources(ctx context.Context, userID string, companyID int64, fn func([]model.Source) ([]model.Source, error)) (model.Company, error) {
	var out model.Company
	err := WithRetry(ctx, keyTxRetries, keyTxBaseDelay, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin source tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		c, err := getCompany(ctx, tx, userID, companyID, true)
		if err != nil {
			return err
		}
		sources, err := fn(c.Sources)
		if err != nil {
			return err
		}
		out, err = scanCompany(tx.QueryRow(ctx,
			`UPDATE companies SET sources = $2, updated_at = $3 WHERE id = $1 RETURNING `+companyColumns,
			c.ID, sources, time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("storage: update sources: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return model.Company{}, err
	}
	return out, nil
}

func getCompany(ctx context.Context, q querier, userID string, id int64, lock bool) (model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE user_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanCompany(q.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Company{}, fmt.Errorf("storage: company %d: %w", id, ErrNotFound)
		}
		return model.Company{}, fmt.Errorf("storage: get company: %w", err)
	}
	return c, nil
}

func scanCompany(row pgx.Row) (model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.UserID, &c.CompanyName, &c.EmployerName, &c.Sources, &c.SourcePriority,
		&c.FetchMode, &c.CreatedAt, &c.UpdatedAt)
	if c.Sources == nil {
		c.Sources = []model.Source{}
	}
	return c, err
}
