// Package publisher turns accepted candidates into catalog rows.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

// Store persists an opportunity together with its content hash. It must
// return storage.ErrDuplicateHash when the hash is already indexed.
type Store interface {
	InsertOpportunityWithHash(ctx context.Context, opp *domain.Opportunity, hash string) error
}

// Outcome of a publish attempt
type Outcome int

const (
	Inserted Outcome = iota
	Duplicate
)

// Writer publishes scraped opportunities
type Writer struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewWriter creates a writer over store
func NewWriter(store Store, logger *zap.Logger) *Writer {
	return &Writer{store: store, now: time.Now, logger: logger}
}

// Publish inserts scraped as an approved, published opportunity in
// categoryID. A hash collision is reported as Duplicate, not as an error.
func (w *Writer) Publish(ctx context.Context, scraped domain.ScrapedOpportunity, categoryID uuid.UUID, hash, source string) (*domain.Opportunity, Outcome, error) {
	opp := Build(scraped, categoryID, source, w.now())

	err := w.store.InsertOpportunityWithHash(ctx, opp, hash)
	switch {
	case errors.Is(err, storage.ErrDuplicateHash):
		w.logger.Debug("Duplicate opportunity skipped",
			zap.String("title", opp.Title),
			zap.String("hash", hash),
		)
		return nil, Duplicate, nil
	case err != nil:
		return nil, Inserted, fmt.Errorf("publish %q: %w", opp.Title, err)
	}

	w.logger.Debug("Opportunity published",
		zap.String("id", opp.ID.String()),
		zap.String("title", opp.Title),
		zap.String("source", source),
	)
	return opp, Inserted, nil
}

// Build maps a scraped listing to a new catalog row. Automated sources are
// trusted, so rows go straight to approved and published.
func Build(scraped domain.ScrapedOpportunity, categoryID uuid.UUID, source string, now time.Time) *domain.Opportunity {
	now = now.UTC()
	return &domain.Opportunity{
		ID:                  uuid.New(),
		Title:               strings.TrimSpace(scraped.Title),
		Description:         strings.TrimSpace(scraped.Description),
		Organization:        strings.TrimSpace(scraped.Organization),
		Location:            optional(scraped.Location),
		CategoryID:          categoryID,
		ApplicationURL:      optional(scraped.ApplicationURL),
		ApplicationDeadline: ParseDeadline(scraped.Deadline),
		Source:              source,
		Status:              domain.OpportunityStatusApproved,
		IsPublished:         true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
