// Package model defines shared data structures for the matcher service.
package model

import (
	"encoding/json"
	"time"
)

// RawListing is a normalised vehicle offer as delivered by a scraper.
// It is the input of the deduplication pipeline; it never reaches the
// database directly.
type RawListing struct {
	ExternalID   string    `json:"externalId,omitempty"`
	SourceSite   string    `json:"sourceSite"`
	URL          string    `json:"url"`
	VIN          string    `json:"vin,omitempty"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Variant      string    `json:"variant,omitempty"`
	Year         *int      `json:"year,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	MileageKM    *int      `json:"mileageKm,omitempty"`
	FuelType     string    `json:"fuelType,omitempty"`
	Transmission string    `json:"transmission,omitempty"`
	BodyType     string    `json:"bodyType,omitempty"`
	PowerKW      *int      `json:"powerKw,omitempty"`
	City         string    `json:"city,omitempty"`
	Region       string    `json:"region,omitempty"`
	Country      string    `json:"country,omitempty"`
	ScrapedAt    time.Time `json:"scrapedAt"`
	DataQuality  float64   `json:"dataQuality"`
	Confidence   float64   `json:"confidence"`
}

// Listing mirrors a row of the listings table.
type Listing struct {
	ID           string
	ExternalID   *string
	SourceSite   string
	URL          string
	VIN          *string
	Make         string
	Model        string
	Variant      *string
	Year         *int
	Price        *float64
	Currency     string
	MileageKM    *int
	FuelType     string
	Transmission string
	BodyType     string
	PowerKW      *int
	City         string
	Region       string
	Country      string
	ScrapedAt    time.Time
	LastUpdated  time.Time
	IsActive     bool
	IsDuplicate  bool
	DuplicateOf  *string
	DataQuality  float64
	Confidence   float64
}

// PriceChange records one price-history delta on a merged listing.
type PriceChange struct {
	ListingID  string
	OldPrice   float64
	NewPrice   float64
	PctChange  float64
	RecordedAt time.Time
}

// QuietHours is a per-user suppression window in minutes since UTC
// midnight. The window is [Start, End) and may wrap past midnight
// (e.g. 22:00–08:00).
type QuietHours struct {
	Enabled bool
	Start   int
	End     int
}

// Alert is one user's standing search criteria, joined with the owner's
// notification settings. Empty strings and nil pointers mean "not
// specified".
type Alert struct {
	ID     string
	UserID string
	Name   string

	Make         string
	Model        string
	PriceMin     *float64
	PriceMax     *float64
	YearMin      *int
	YearMax      *int
	MaxMileageKM *int
	FuelType     string
	Transmission string
	BodyType     string
	City         string
	Region       string

	IsActive        bool
	Frequency       string
	LastTriggeredAt *time.Time
	TriggerCount    int
	MaxPerDay       int

	// Owner settings (from the users join).
	UserMaxPerDay int
	Quiet         QuietHours
}

// MatchResult is the transient output of scoring one (alert, listing) pair.
type MatchResult struct {
	Score           float64
	MatchedCriteria []string
	Actionable      bool
	Perfect         bool
}

// Notification statuses. The matcher owns pending/deferred; the delivery
// collaborator advances sent/delivered/failed.
const (
	NotificationPending   = "pending"
	NotificationDeferred  = "deferred"
	NotificationSent      = "sent"
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

// Notification is a queued notification draft for the delivery collaborator.
type Notification struct {
	ID            string
	UserID        string
	AlertID       string
	ListingID     string
	Title         string
	Message       string
	Content       json.RawMessage
	Priority      string
	Status        string
	DeferredUntil *time.Time
	CreatedAt     time.Time
}

// MatchRun statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// MatchRun is the audit record of one orchestrator execution.
type MatchRun struct {
	ID                   string
	StartedAt            time.Time
	CompletedAt          *time.Time
	Status               string
	AlertsProcessed      int
	ListingsChecked      int
	MatchesFound         int
	NotificationsCreated int
	Error                string
}
