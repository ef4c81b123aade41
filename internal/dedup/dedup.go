// Package dedup fingerprints opportunities so the same listing is
// published once no matter how often it is scraped.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// Normalize folds compatibility characters (NFKC), lower-cases and
// collapses all whitespace runs to a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(s))), " ")
}

// Hash is the hex SHA-256 of the normalized concatenation of title and
// description. It depends only on that concatenation.
func Hash(title, description string) string {
	sum := sha256.Sum256([]byte(Normalize(title + description)))
	return hex.EncodeToString(sum[:])
}

// HashIndex is the durable set of published content hashes
type HashIndex interface {
	HashExists(ctx context.Context, hash string) (bool, error)
}

// Checker answers whether a candidate was already published, either in
// an earlier run (via the index) or earlier in the current one.
type Checker struct {
	index HashIndex
	seen  map[string]bool
}

// NewChecker returns a checker for one run
func NewChecker(index HashIndex) *Checker {
	return &Checker{index: index, seen: make(map[string]bool)}
}

// Check returns the candidate's hash and whether it is a duplicate,
// either of a remembered hash or of one in the index.
func (c *Checker) Check(ctx context.Context, opp domain.ScrapedOpportunity) (string, bool, error) {
	hash := Hash(opp.Title, opp.Description)
	if c.seen[hash] {
		return hash, true, nil
	}

	exists, err := c.index.HashExists(ctx, hash)
	if err != nil {
		return hash, false, fmt.Errorf("look up content hash: %w", err)
	}
	if exists {
		c.seen[hash] = true
	}
	return hash, exists, nil
}

// Remember marks hash as published in this run. Call it only once the
// write has landed, so a candidate whose publish failed is checked again.
func (c *Checker) Remember(hash string) {
	c.seen[hash] = true
}
