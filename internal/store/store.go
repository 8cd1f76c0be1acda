// Package store is the persistence gateway. All reads and writes from
// the ingestion pipeline, the solver, the detectors and the API go
// through the Store interface; SQLiteStore is the only implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

type EventFilter struct {
	SourceID  *string
	EventType *models.EventType
	Severity  *models.Severity
	Processed *bool
	Since     *time.Time
	Limit     int
	Offset    int
}

type DisasterFilter struct {
	Status *models.DisasterStatus
	Type   *models.DisasterType
	Since  *time.Time
	Limit  int
	Offset int
}

type AnomalyFilter struct {
	Status *models.AnomalyStatus
	Type   *models.AnomalyType
	Limit  int
}

type RequestFilter struct {
	VictimID *string
	Status   *models.RequestStatus
	Since    *time.Time
	Limit    int
}

type EventStore interface {
	InsertEvents(ctx context.Context, events []models.IngestedEvent) (int, error)
	ExistingEventIDs(ctx context.Context, externalIDs []string) (map[string]bool, error)
	GetEvent(ctx context.Context, id string) (*models.IngestedEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]models.IngestedEvent, error)
	MarkEventProcessed(ctx context.Context, id string, disasterID *string, predictionIDs []string) error
	CountEventsBySource(ctx context.Context, since time.Time) (map[string]int, error)
}

type SourceStore interface {
	EnsureSource(ctx context.Context, src *models.Source) (*models.Source, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	RecordPollResult(ctx context.Context, sourceName string, status models.SourceStatus, pollErr string, at time.Time) error
}

type DisasterStore interface {
	InsertDisaster(ctx context.Context, d *models.Disaster) error
	GetDisaster(ctx context.Context, id string) (*models.Disaster, error)
	ListDisasters(ctx context.Context, f DisasterFilter) ([]models.Disaster, error)
	UpdateDisasterStatus(ctx context.Context, id string, status models.DisasterStatus) error
	CountDisastersByStatus(ctx context.Context) (map[string]int, error)

	InsertLocation(ctx context.Context, l *models.Location) error
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	FindLocationNear(ctx context.Context, lat, lon, toleranceDeg float64) (*models.Location, error)
}

type ObservationStore interface {
	InsertWeather(ctx context.Context, obs *models.WeatherObservation) error
	LatestWeather(ctx context.Context, locationID string) (*models.WeatherObservation, error)
	InsertHotspots(ctx context.Context, rows []models.SatelliteObservation) (int, error)
	ExistingHotspotIDs(ctx context.Context, externalIDs []string) (map[string]bool, error)
	CountHotspotsSince(ctx context.Context, since time.Time) (int, error)
	HotspotSummaryForArea(ctx context.Context, lat, lon, radiusDeg float64) (models.HotspotSummary, error)
}

type PredictionStore interface {
	InsertPrediction(ctx context.Context, p *models.Prediction) error
	ListPredictionsForDisaster(ctx context.Context, disasterID string) ([]models.Prediction, error)
	ListPredictionsSince(ctx context.Context, since time.Time) ([]models.Prediction, error)
}

type AlertStore interface {
	InsertAlert(ctx context.Context, a *models.AlertNotification) error
	UpdateAlertDelivery(ctx context.Context, id string, status models.AlertStatus, externalRef, errMsg string, sentAt *time.Time) error
	ListAlerts(ctx context.Context, limit int) ([]models.AlertNotification, error)
	CountAlertsSince(ctx context.Context, since time.Time) (int, error)

	InsertRecipient(ctx context.Context, r *models.Recipient) error
	ListRecipientsByRoles(ctx context.Context, roles []string) ([]models.Recipient, error)
}

type ResourceStore interface {
	InsertResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	ListResources(ctx context.Context) ([]models.Resource, error)
	ListAvailableResources(ctx context.Context) ([]models.Resource, error)
	MarkResourcesAllocated(ctx context.Context, ids []string, disasterID string) (int64, error)
	ListResourcesAllocatedSince(ctx context.Context, since time.Time) ([]models.Resource, error)
}

type RequestStore interface {
	InsertRequest(ctx context.Context, r *models.ResourceRequest) error
	GetRequest(ctx context.Context, id string) (*models.ResourceRequest, error)
	UpdateRequest(ctx context.Context, r *models.ResourceRequest) error
	ListRequests(ctx context.Context, f RequestFilter) ([]models.ResourceRequest, error)
}

type AnomalyStore interface {
	InsertAnomaly(ctx context.Context, a *models.AnomalyAlert) error
	ListAnomalies(ctx context.Context, f AnomalyFilter) ([]models.AnomalyAlert, error)
	UpdateAnomalyStatus(ctx context.Context, id string, status models.AnomalyStatus, ackBy string) error
}

type OutcomeStore interface {
	InsertOutcome(ctx context.Context, o *models.Outcome) error
	ListOutcomesByType(ctx context.Context, pt models.PredictionType, since time.Time) ([]models.Outcome, error)
	OutcomePredictionIDs(ctx context.Context, disasterID string) (map[string]bool, error)
}

type ReportStore interface {
	InsertReport(ctx context.Context, r *models.SituationReport) error
	LatestReport(ctx context.Context) (*models.SituationReport, error)
}

// Store is the full gateway used by the wiring in cmd.
type Store interface {
	EventStore
	SourceStore
	DisasterStore
	ObservationStore
	PredictionStore
	AlertStore
	ResourceStore
	RequestStore
	AnomalyStore
	OutcomeStore
	ReportStore
	Close() error
}
