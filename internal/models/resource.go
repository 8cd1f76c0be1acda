package models

import "time"

type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceAllocated ResourceStatus = "allocated"
	ResourceInTransit ResourceStatus = "in_transit"
	ResourceDeployed  ResourceStatus = "deployed"
)

// Resource is a stock row at a depot location.
type Resource struct {
	ID         string
	Type       string
	Quantity   float64
	Priority   int // 1-10
	Status     ResourceStatus
	LocationID string
	Latitude   float64
	Longitude  float64
	DisasterID *string
	ExpiryDate *time.Time // nil for non-perishables
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResourceNeed is a single requirement from a disaster zone.
type ResourceNeed struct {
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Urgency  float64 `json:"urgency"` // 1-10
	ZoneLat  float64 `json:"zone_lat"`
	ZoneLon  float64 `json:"zone_lon"`
}

// Allocation binds one resource to one need.
type Allocation struct {
	ResourceID string     `json:"resource_id"`
	Type       string     `json:"type"`
	Quantity   float64    `json:"quantity"`
	LocationID string     `json:"location_id"`
	DistanceKm float64    `json:"distance_km"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestApproved   RequestStatus = "approved"
	RequestAssigned   RequestStatus = "assigned"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestRejected   RequestStatus = "rejected"
)

// ResourceRequest is a victim-submitted request. Editable only while
// pending; cancellation transitions to rejected.
type ResourceRequest struct {
	ID                string
	VictimID          string
	Description       string
	Items             []string
	ResourceType      string
	Quantity          int
	Priority          Severity
	Status            RequestStatus
	NLPClassification map[string]any
	UrgencySignals    []string
	AIConfidence      float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
