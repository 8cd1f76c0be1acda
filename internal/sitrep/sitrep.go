// Package sitrep renders the daily situation report: a markdown digest
// of disasters, resources, victim requests, predictions and anomalies
// assembled from the store and persisted for the dashboard.
package sitrep

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

const (
	reportWindow       = 24 * time.Hour
	maxListedDisasters = 10
	maxListedAnomalies = 5
	utilizationWarnPct = 80.0
)

type reportStore interface {
	store.EventStore
	store.DisasterStore
	store.ObservationStore
	store.PredictionStore
	store.ResourceStore
	store.RequestStore
	store.AnomalyStore
	store.ReportStore
}

// Generator builds and stores situation reports on demand.
type Generator struct {
	store reportStore
}

func NewGenerator(st reportStore) *Generator {
	return &Generator{store: st}
}

// snapshot is everything one report reads from the store.
type snapshot struct {
	now       time.Time
	disasters []models.Disaster
	resources []models.Resource
	requests  []models.ResourceRequest
	preds     []models.Prediction
	bySource  map[string]int
	hotspots  int
	anomalies []models.AnomalyAlert
}

// Generate assembles a report from current platform state and persists
// it. generatedBy records the trigger, "cron" or "manual".
func (g *Generator) Generate(ctx context.Context, generatedBy string) (*models.SituationReport, error) {
	snap, err := g.gather(ctx)
	if err != nil {
		return nil, err
	}

	content := render(snap)
	report := &models.SituationReport{
		ID:          uuid.NewString(),
		ReportDate:  snap.now.Truncate(24 * time.Hour),
		Content:     content,
		Stats:       keyMetrics(snap),
		GeneratedBy: generatedBy,
		CreatedAt:   snap.now,
	}
	if err := g.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("error storing report: %w", err)
	}

	slog.Info("situation report generated", "report_id", report.ID,
		"generated_by", generatedBy, "length", len(content))
	return report, nil
}

func (g *Generator) gather(ctx context.Context) (*snapshot, error) {
	now := time.Now().UTC()
	since := now.Add(-reportWindow)
	snap := &snapshot{now: now}

	for _, status := range []models.DisasterStatus{models.DisasterActive, models.DisasterMonitoring} {
		st := status
		list, err := g.store.ListDisasters(ctx, store.DisasterFilter{Status: &st, Limit: 50})
		if err != nil {
			return nil, fmt.Errorf("error listing disasters: %w", err)
		}
		snap.disasters = append(snap.disasters, list...)
	}
	sort.SliceStable(snap.disasters, func(i, j int) bool {
		return models.SeverityRank(snap.disasters[i].Severity) > models.SeverityRank(snap.disasters[j].Severity)
	})

	var err error
	if snap.resources, err = g.store.ListResources(ctx); err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	if snap.requests, err = g.store.ListRequests(ctx, store.RequestFilter{}); err != nil {
		return nil, fmt.Errorf("error listing requests: %w", err)
	}
	if snap.preds, err = g.store.ListPredictionsSince(ctx, since); err != nil {
		return nil, fmt.Errorf("error listing predictions: %w", err)
	}
	if snap.bySource, err = g.store.CountEventsBySource(ctx, since); err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}
	if snap.hotspots, err = g.store.CountHotspotsSince(ctx, since); err != nil {
		return nil, fmt.Errorf("error counting hotspots: %w", err)
	}

	active := models.AnomalyActive
	if snap.anomalies, err = g.store.ListAnomalies(ctx, store.AnomalyFilter{Status: &active, Limit: 20}); err != nil {
		return nil, fmt.Errorf("error listing anomalies: %w", err)
	}
	return snap, nil
}

// resourceStats aggregates the stock table: counts per status, quantity
// per type, and the utilization percentage.
type resourceStats struct {
	byStatus   map[models.ResourceStatus]int
	qtyByType  map[string]float64
	total      int
	utilizePct float64
}

func summarizeResources(resources []models.Resource) resourceStats {
	rs := resourceStats{
		byStatus:  make(map[models.ResourceStatus]int),
		qtyByType: make(map[string]float64),
		total:     len(resources),
	}
	for _, r := range resources {
		rs.byStatus[r.Status]++
		rs.qtyByType[r.Type] += r.Quantity
	}
	if rs.total > 0 {
		inUse := rs.byStatus[models.ResourceAllocated] +
			rs.byStatus[models.ResourceDeployed] +
			rs.byStatus[models.ResourceInTransit]
		rs.utilizePct = round1(float64(inUse) / float64(rs.total) * 100)
	}
	return rs
}

// openStatuses are the request states that still need responder action.
var openStatuses = map[models.RequestStatus]bool{
	models.RequestPending:    true,
	models.RequestApproved:   true,
	models.RequestAssigned:   true,
	models.RequestInProgress: true,
}

type requestStats struct {
	byStatus map[models.RequestStatus]int
	open     int
	critical int
	pending  int
}

func summarizeRequests(requests []models.ResourceRequest) requestStats {
	qs := requestStats{byStatus: make(map[models.RequestStatus]int)}
	for _, r := range requests {
		if !openStatuses[r.Status] {
			continue
		}
		qs.byStatus[r.Status]++
		qs.open++
		if r.Priority == models.SeverityCritical {
			qs.critical++
		}
	}
	qs.pending = qs.byStatus[models.RequestPending]
	return qs
}

type predictionStats struct {
	byType        map[models.PredictionType]int
	total         int
	avgConfidence float64
}

func summarizePredictions(preds []models.Prediction) predictionStats {
	ps := predictionStats{byType: make(map[models.PredictionType]int), total: len(preds)}
	var confSum float64
	for _, p := range preds {
		ps.byType[p.PredictionType]++
		confSum += p.ConfidenceScore
	}
	if ps.total > 0 {
		ps.avgConfidence = round3(confSum / float64(ps.total))
	}
	return ps
}

func countCriticalDisasters(disasters []models.Disaster) int {
	n := 0
	for _, d := range disasters {
		if d.Severity == models.SeverityCritical {
			n++
		}
	}
	return n
}

func totalEvents(bySource map[string]int) int {
	n := 0
	for _, c := range bySource {
		n += c
	}
	return n
}

func keyMetrics(snap *snapshot) map[string]any {
	rs := summarizeResources(snap.resources)
	qs := summarizeRequests(snap.requests)
	ps := summarizePredictions(snap.preds)
	return map[string]any{
		"active_disasters":         len(snap.disasters),
		"critical_disasters":       countCriticalDisasters(snap.disasters),
		"open_requests":            qs.open,
		"critical_requests":        qs.critical,
		"resource_utilization_pct": rs.utilizePct,
		"events_24h":               totalEvents(snap.bySource),
		"hotspots_24h":             snap.hotspots,
		"predictions_24h":          ps.total,
		"avg_confidence":           ps.avgConfidence,
		"active_anomalies":         len(snap.anomalies),
	}
}

func render(snap *snapshot) string {
	rs := summarizeResources(snap.resources)
	qs := summarizeRequests(snap.requests)
	ps := summarizePredictions(snap.preds)
	events := totalEvents(snap.bySource)
	criticalDisasters := countCriticalDisasters(snap.disasters)

	var b strings.Builder
	fmt.Fprintf(&b, "# Situation Report - %s\n\n", snap.now.Format("2006-01-02"))

	b.WriteString("## 1. Executive Summary\n\n")
	fmt.Fprintf(&b, "Tracking %d active disasters (%d critical) with %d open victim requests. "+
		"%d events ingested across %d sources in the last 24 hours. "+
		"Resource utilization stands at %.1f%%.\n\n",
		len(snap.disasters), criticalDisasters, qs.open,
		events, len(snap.bySource), rs.utilizePct)

	b.WriteString("## 2. Key Metrics Dashboard\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Active Disasters | %d |\n", len(snap.disasters))
	fmt.Fprintf(&b, "| Critical Disasters | %d |\n", criticalDisasters)
	fmt.Fprintf(&b, "| Open Requests | %d |\n", qs.open)
	fmt.Fprintf(&b, "| Critical Requests | %d |\n", qs.critical)
	fmt.Fprintf(&b, "| Resource Utilization | %.1f%% |\n", rs.utilizePct)
	fmt.Fprintf(&b, "| Events (24h) | %d |\n", events)
	fmt.Fprintf(&b, "| Fire Hotspots (24h) | %d |\n", snap.hotspots)
	fmt.Fprintf(&b, "| Predictions (24h) | %d |\n", ps.total)
	fmt.Fprintf(&b, "| Active Anomalies | %d |\n\n", len(snap.anomalies))

	b.WriteString("## 3. Active Disasters Status\n\n")
	if len(snap.disasters) == 0 {
		b.WriteString("No active disasters.\n\n")
	} else {
		listed := snap.disasters
		if len(listed) > maxListedDisasters {
			listed = listed[:maxListedDisasters]
		}
		for _, d := range listed {
			fmt.Fprintf(&b, "- **%s** (%s, %s severity) - status: %s\n",
				d.Title, d.Type, d.Severity, d.Status)
		}
		if len(snap.disasters) > maxListedDisasters {
			fmt.Fprintf(&b, "- ...and %d more\n", len(snap.disasters)-maxListedDisasters)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 4. Resource Status & Gaps\n\n")
	if rs.total == 0 {
		b.WriteString("No resources registered.\n\n")
	} else {
		b.WriteString("| Status | Count |\n|--------|-------|\n")
		for _, status := range []models.ResourceStatus{
			models.ResourceAvailable, models.ResourceAllocated,
			models.ResourceInTransit, models.ResourceDeployed,
		} {
			fmt.Fprintf(&b, "| %s | %d |\n", status, rs.byStatus[status])
		}
		b.WriteString("\nQuantity by type:\n\n")
		for _, t := range sortedKeys(rs.qtyByType) {
			fmt.Fprintf(&b, "- %s: %.0f units\n", t, rs.qtyByType[t])
		}
		if rs.utilizePct > utilizationWarnPct {
			fmt.Fprintf(&b, "\n**WARNING: resource utilization at %.1f%% - restock needed.**\n", rs.utilizePct)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 5. Victim Requests Analysis\n\n")
	if qs.open == 0 {
		b.WriteString("No open victim requests.\n\n")
	} else {
		fmt.Fprintf(&b, "%d open requests (%d critical priority).\n\n", qs.open, qs.critical)
		b.WriteString("| Status | Count |\n|--------|-------|\n")
		for _, status := range []models.RequestStatus{
			models.RequestPending, models.RequestApproved,
			models.RequestAssigned, models.RequestInProgress,
		} {
			fmt.Fprintf(&b, "| %s | %d |\n", status, qs.byStatus[status])
		}
		b.WriteString("\n")
	}

	b.WriteString("## 6. ML Predictions & Trends\n\n")
	if ps.total == 0 {
		b.WriteString("No predictions generated in the last 24 hours.\n\n")
	} else {
		fmt.Fprintf(&b, "%d predictions in the last 24 hours, average confidence %.3f.\n\n",
			ps.total, ps.avgConfidence)
		for _, kind := range []models.PredictionType{
			models.PredictSeverity, models.PredictSpread, models.PredictImpact,
		} {
			if n := ps.byType[kind]; n > 0 {
				fmt.Fprintf(&b, "- %s: %d\n", kind, n)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## 7. Anomalies & Alerts\n\n")
	if len(snap.anomalies) == 0 {
		b.WriteString("No active anomalies.\n\n")
	} else {
		listed := snap.anomalies
		if len(listed) > maxListedAnomalies {
			listed = listed[:maxListedAnomalies]
		}
		for _, a := range listed {
			fmt.Fprintf(&b, "- [%s] %s (score %.3f)\n", a.Severity, a.Title, a.AnomalyScore)
		}
		if len(snap.anomalies) > maxListedAnomalies {
			fmt.Fprintf(&b, "- ...and %d more\n", len(snap.anomalies)-maxListedAnomalies)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 8. Recommendations\n\n")
	recNum := 0
	rec := func(format string, args ...any) {
		recNum++
		fmt.Fprintf(&b, "%d. %s\n", recNum, fmt.Sprintf(format, args...))
	}
	if criticalDisasters > 0 {
		rec("Prioritize response to %d critical-severity disasters.", criticalDisasters)
	}
	if qs.critical > 0 {
		rec("Fast-track %d critical-priority victim requests awaiting action.", qs.critical)
	}
	if rs.utilizePct > utilizationWarnPct {
		rec("Resource utilization at %.1f%% - restock available inventory.", rs.utilizePct)
	}
	if len(snap.anomalies) > 0 {
		rec("Investigate %d active anomaly alerts.", len(snap.anomalies))
	}
	if qs.pending > 10 {
		rec("Triage backlog: %d victim requests still pending.", qs.pending)
	}
	if recNum == 0 {
		b.WriteString("No urgent recommendations. Continue routine monitoring.\n")
	}

	fmt.Fprintf(&b, "\n---\n*Report generated by Rule-Based SitRep Engine - %s UTC*\n",
		snap.now.Format("2006-01-02 15:04:05"))
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
