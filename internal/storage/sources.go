package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const sourceColumns = `id, name, url, source_type, is_active, success_rate, last_scraped_at,
	category_mapping, created_at, updated_at`

// ListSources returns all persisted sources, highest success rate first
func (p *Postgres) ListSources(ctx context.Context) ([]domain.ScrapingSource, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM scraping_sources ORDER BY success_rate DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.ScrapingSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetSource loads one source
func (p *Postgres) GetSource(ctx context.Context, id string) (domain.ScrapingSource, error) {
	src, err := scanSource(p.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM scraping_sources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScrapingSource{}, ErrNotFound
	}
	if err != nil {
		return domain.ScrapingSource{}, fmt.Errorf("query source: %w", err)
	}
	return src, nil
}

// EnsureSource inserts src if no row with its id exists. Existing rows keep
// their success rate and history.
func (p *Postgres) EnsureSource(ctx context.Context, src domain.ScrapingSource) error {
	mapping, err := json.Marshal(src.CategoryMapping)
	if err != nil {
		return fmt.Errorf("encode category mapping: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO scraping_sources (id, name, url, source_type, is_active, success_rate, category_mapping)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, url = EXCLUDED.url`,
		src.ID, src.Name, src.URL, string(src.Type), src.IsActive, src.SuccessRate, mapping,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// RecordSourceResult moves the source's success rate and stamps
// last_scraped_at. The read-modify-write runs under a row lock.
func (p *Postgres) RecordSourceResult(ctx context.Context, id string, ok bool, at time.Time) (float64, error) {
	var next float64
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var current float64
		err := tx.QueryRow(ctx,
			`SELECT success_rate FROM scraping_sources WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock source: %w", err)
		}

		next = domain.NextSuccessRate(current, ok)
		_, err = tx.Exec(ctx,
			`UPDATE scraping_sources SET success_rate = $2, last_scraped_at = $3, updated_at = $3 WHERE id = $1`,
			id, next, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		return nil
	})
	return next, err
}

func scanSource(row pgx.Row) (domain.ScrapingSource, error) {
	var (
		src        domain.ScrapingSource
		sourceType string
		mapping    []byte
	)
	err := row.Scan(
		&src.ID, &src.Name, &src.URL, &sourceType, &src.IsActive, &src.SuccessRate, &src.LastScrapedAt,
		&mapping, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return src, err
	}
	src.Type = domain.SourceType(sourceType)
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &src.CategoryMapping); err != nil {
			return src, fmt.Errorf("decode category mapping: %w", err)
		}
	}
	return src, nil
}
