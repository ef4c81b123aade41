package storage

import (
	"context"
	"fmt"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// AddDailyAnalytics adds a run's counts to the source's row for the day
func (p *Postgres) AddDailyAnalytics(ctx context.Context, a domain.DailyAnalytics) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO scraping_analytics
			(source_id, day, opportunities_found, opportunities_published, duplicates, updated, errors_count)
		 VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id, day) DO UPDATE SET
			opportunities_found     = scraping_analytics.opportunities_found + EXCLUDED.opportunities_found,
			opportunities_published = scraping_analytics.opportunities_published + EXCLUDED.opportunities_published,
			duplicates              = scraping_analytics.duplicates + EXCLUDED.duplicates,
			updated                 = scraping_analytics.updated + EXCLUDED.updated,
			errors_count            = scraping_analytics.errors_count + EXCLUDED.errors_count`,
		a.SourceID, a.Day.UTC().Format("2006-01-02"), a.Found, a.Published, a.Duplicates, a.Updated, a.Errors,
	)
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}
