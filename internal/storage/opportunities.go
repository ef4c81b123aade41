package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// Categories returns the catalog categories ordered by name
func (p *Postgres) Categories(ctx context.Context) ([]domain.Category, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HashExists reports whether hash is already indexed
func (p *Postgres) HashExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM opportunity_hashes WHERE combined_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query hash: %w", err)
	}
	return exists, nil
}

// InsertOpportunityWithHash writes the opportunity and its hash record in
// one transaction. If the hash is already taken nothing is written and
// ErrDuplicateHash is returned.
func (p *Postgres) InsertOpportunityWithHash(ctx context.Context, opp *domain.Opportunity, hash string) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO opportunities (
				id, title, description, organization, location, category_id,
				application_url, application_deadline, source, status, is_published,
				view_count, application_count, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			opp.ID, opp.Title, opp.Description, opp.Organization, opp.Location, opp.CategoryID,
			opp.ApplicationURL, opp.ApplicationDeadline, opp.Source, string(opp.Status), opp.IsPublished,
			opp.ViewCount, opp.ApplicationCount, opp.CreatedAt, opp.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO opportunity_hashes (opportunity_id, combined_hash) VALUES ($1, $2)`,
			opp.ID, hash,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateHash
			}
			return fmt.Errorf("insert hash: %w", err)
		}
		return nil
	})
	return err
}

// FindSimilarOpportunity returns the most recent opportunity from source
// whose title contains title (case-insensitive) and whose organization
// matches, when organization is non-empty.
func (p *Postgres) FindSimilarOpportunity(ctx context.Context, source, title, organization string) (*domain.Opportunity, error) {
	var (
		opp    domain.Opportunity
		status string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, title, description, organization, location, category_id, application_url,
		        application_deadline, source, status, is_published, view_count, application_count,
		        created_at, updated_at
		 FROM opportunities
		 WHERE source = $1
		   AND title ILIKE '%' || $2 || '%'
		   AND ($3 = '' OR organization ILIKE '%' || $3 || '%')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		source, escapeLike(title), escapeLike(organization),
	).Scan(
		&opp.ID, &opp.Title, &opp.Description, &opp.Organization, &opp.Location, &opp.CategoryID,
		&opp.ApplicationURL, &opp.ApplicationDeadline, &opp.Source, &status, &opp.IsPublished,
		&opp.ViewCount, &opp.ApplicationCount, &opp.CreatedAt, &opp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query similar opportunity: %w", err)
	}
	opp.Status = domain.OpportunityStatus(status)
	return &opp, nil
}

// UpdateDescription replaces an opportunity's description
func (p *Postgres) UpdateDescription(ctx context.Context, id uuid.UUID, description string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE opportunities SET description = $2, updated_at = $3 WHERE id = $1`,
		id, description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
