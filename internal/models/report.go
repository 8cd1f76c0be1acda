package models

import "time"

// SituationReport is a daily markdown digest of platform state.
type SituationReport struct {
	ID          string
	ReportDate  time.Time
	Content     string
	Stats       map[string]any
	GeneratedBy string // "cron" or "manual"
	CreatedAt   time.Time
}
