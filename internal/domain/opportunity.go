package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScrapedOpportunity is a listing as pulled off a page. It lives only for
// the duration of a run.
type ScrapedOpportunity struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Deadline       string `json:"deadline,omitempty"`
	Location       string `json:"location,omitempty"`
	ApplicationURL string `json:"application_url,omitempty"`
	Organization   string `json:"organization"`
	SourceURL      string `json:"source_url"`
}

// OpportunityStatus is the moderation state of a catalog row
type OpportunityStatus string

const (
	OpportunityStatusPending  OpportunityStatus = "pending"
	OpportunityStatusApproved OpportunityStatus = "approved"
	OpportunityStatusRejected OpportunityStatus = "rejected"
)

// Opportunity is a row of the shared catalog
type Opportunity struct {
	ID                  uuid.UUID         `json:"id"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	Organization        string            `json:"organization"`
	Location            *string           `json:"location,omitempty"`
	CategoryID          uuid.UUID         `json:"category_id"`
	ApplicationURL      *string           `json:"application_url,omitempty"`
	ApplicationDeadline *time.Time        `json:"application_deadline,omitempty"`
	Source              string            `json:"source"`
	Status              OpportunityStatus `json:"status"`
	IsPublished         bool              `json:"is_published"`
	ViewCount           int               `json:"view_count"`
	ApplicationCount    int               `json:"application_count"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Category is a catalog category; Slug is what the mapper matches on
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// Category slugs the generic keyword heuristics resolve to
const (
	CategoryJobs         = "jobs"
	CategoryScholarships = "scholarships"
	CategoryFellowships  = "fellowships"
	CategoryInternships  = "internships"
)
