package models

import "time"

type AlertChannel string

const (
	ChannelEmail AlertChannel = "email"
	ChannelLog   AlertChannel = "log"
)

type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertSent         AlertStatus = "sent"
	AlertFailed       AlertStatus = "failed"
	AlertLogged       AlertStatus = "logged"
	AlertAcknowledged AlertStatus = "acknowledged"
)

// AlertNotification is one dispatch attempt for one (event, recipient) pair.
type AlertNotification struct {
	ID            string
	EventID       string
	DisasterID    *string
	PredictionID  *string
	Recipient     string
	RecipientRole string
	Subject       string
	Body          string
	Severity      Severity
	Channel       AlertChannel
	Status        AlertStatus
	ExternalRef   string
	ErrorMessage  string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// Recipient is the subset of a user row the dispatcher needs.
type Recipient struct {
	ID       string
	Email    string
	Role     string // ngo | admin
	FullName string
}

type AnomalyType string

const (
	AnomalyResourceConsumption AnomalyType = "resource_consumption"
	AnomalyRequestVolume       AnomalyType = "request_volume"
	AnomalySeverityEscalation  AnomalyType = "severity_escalation"
)

type AnomalyStatus string

const (
	AnomalyActive        AnomalyStatus = "active"
	AnomalyAcked         AnomalyStatus = "acknowledged"
	AnomalyResolved      AnomalyStatus = "resolved"
	AnomalyFalsePositive AnomalyStatus = "false_positive"
)

// ExpectedRange is the inlier 5th/95th percentile band for an anomaly.
type ExpectedRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// AnomalyAlert is one detected anomaly with its explanation.
type AnomalyAlert struct {
	ID             string
	AnomalyType    AnomalyType
	Severity       Severity
	Title          string
	Description    string
	MetricName     string
	MetricValue    float64
	ExpectedRange  ExpectedRange
	AnomalyScore   float64 // negative = more anomalous
	ContextData    map[string]any
	AIExplanation  string
	Status         AnomalyStatus
	DetectedAt     time.Time
	AcknowledgedBy string
	AcknowledgedAt *time.Time
}
