package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/predict"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

// Notifier evaluates an event against the alert threshold and fans out
// notifications to registered responders.
type Notifier interface {
	EvaluateAndNotify(ctx context.Context, event models.IngestedEvent, disasterID, predictionID *string) ([]models.AlertNotification, error)
}

// Publisher pushes freshly ingested events to live subscribers.
type Publisher interface {
	Publish(event models.IngestedEvent)
}

// PollStats summarizes one poll of one source.
type PollStats struct {
	Source    string `json:"source"`
	NewEvents int    `json:"new_events"`
	Hotspots  int    `json:"hotspots"`
	Weather   int    `json:"weather_observations"`
}

// Status reports the orchestrator plus the source registry rows.
type Status struct {
	Running bool            `json:"orchestrator_running"`
	Sources []models.Source `json:"sources"`
}

// Orchestrator runs one poller goroutine per adapter, persists and
// dedups their output, and pushes qualifying events through the
// disaster/prediction/alert cascade.
type Orchestrator struct {
	store     store.Store
	adapters  []Adapter
	predictor *predict.Service
	notifier  Notifier
	publisher Publisher
	maxEvents int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(st store.Store, predictor *predict.Service, notifier Notifier, publisher Publisher, maxEvents int, adapters ...Adapter) *Orchestrator {
	return &Orchestrator{
		store:     st,
		adapters:  adapters,
		predictor: predictor,
		notifier:  notifier,
		publisher: publisher,
		maxEvents: maxEvents,
	}
}

// Start launches a poller per adapter. Safe to call once; subsequent
// calls while running are no-ops.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.running = true

	for _, a := range o.adapters {
		o.wg.Add(1)
		go o.runPoller(ctx, a)
	}
	slog.Info("ingestion orchestrator started", "adapters", len(o.adapters))
}

// Stop cancels the pollers and waits for them to drain.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	slog.Info("ingestion orchestrator stopped")
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) runPoller(ctx context.Context, a Adapter) {
	defer o.wg.Done()
	slog.Info("starting poller", "source", a.Name(), "interval", a.Interval())

	ticker := time.NewTicker(a.Interval())
	defer ticker.Stop()

	// Initial poll
	o.pollAdapter(ctx, a)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", a.Name())
			return
		case <-ticker.C:
			o.pollAdapter(ctx, a)
		}
	}
}

func (o *Orchestrator) pollAdapter(ctx context.Context, a Adapter) {
	stats, err := o.pollOnce(ctx, a)
	if err != nil {
		slog.Error("poll failed", "source", a.Name(), "error", err)
		return
	}
	slog.Debug("poll complete", "source", a.Name(),
		"new_events", stats.NewEvents, "hotspots", stats.Hotspots, "weather", stats.Weather)
}

// PollSource polls one source by registry name on demand.
func (o *Orchestrator) PollSource(ctx context.Context, name string) (PollStats, error) {
	for _, a := range o.adapters {
		if a.Name() == name {
			return o.pollOnce(ctx, a)
		}
	}
	return PollStats{}, fmt.Errorf("unknown source: %s", name)
}

// Status returns the running flag and the per-source registry rows.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("error listing sources: %w", err)
	}
	return Status{Running: o.Running(), Sources: sources}, nil
}

// pollOnce runs one full poll cycle for an adapter: fetch, dedup,
// persist, cascade, and record the outcome on the source row.
func (o *Orchestrator) pollOnce(ctx context.Context, a Adapter) (PollStats, error) {
	stats := PollStats{Source: a.Name()}

	src, err := o.store.EnsureSource(ctx, descriptorOf(a))
	if err != nil {
		return stats, fmt.Errorf("error ensuring source: %w", err)
	}

	batch, err := a.Poll(ctx)
	if err != nil {
		if recErr := o.store.RecordPollResult(ctx, a.Name(), models.SourceStatusError, err.Error(), time.Now().UTC()); recErr != nil {
			slog.Error("error recording poll failure", "source", a.Name(), "error", recErr)
		}
		return stats, err
	}

	if len(batch.Hotspots) > 0 {
		n, err := o.storeHotspots(ctx, batch.Hotspots)
		if err != nil {
			return stats, o.recordError(ctx, a.Name(), err)
		}
		stats.Hotspots = n
	}

	for i := range batch.Weather {
		if err := o.store.InsertWeather(ctx, &batch.Weather[i]); err != nil {
			return stats, o.recordError(ctx, a.Name(), err)
		}
	}
	stats.Weather = len(batch.Weather)

	if len(batch.Events) > 0 {
		newEvents, err := o.storeEvents(ctx, src.ID, batch.Events)
		if err != nil {
			return stats, o.recordError(ctx, a.Name(), err)
		}
		stats.NewEvents = len(newEvents)

		for i := range newEvents {
			if o.publisher != nil {
				o.publisher.Publish(newEvents[i])
			}
			o.processEvent(ctx, &newEvents[i])
		}
	}

	if err := o.store.RecordPollResult(ctx, a.Name(), models.SourceStatusSuccess, "", time.Now().UTC()); err != nil {
		slog.Error("error recording poll result", "source", a.Name(), "error", err)
	}
	return stats, nil
}

func (o *Orchestrator) recordError(ctx context.Context, name string, err error) error {
	if recErr := o.store.RecordPollResult(ctx, name, models.SourceStatusError, err.Error(), time.Now().UTC()); recErr != nil {
		slog.Error("error recording poll failure", "source", name, "error", recErr)
	}
	return err
}

// storeEvents caps, dedups and inserts a poll's events, returning only
// the ones not previously seen.
func (o *Orchestrator) storeEvents(ctx context.Context, sourceID string, events []models.IngestedEvent) ([]models.IngestedEvent, error) {
	if o.maxEvents > 0 && len(events) > o.maxEvents {
		events = events[:o.maxEvents]
	}

	externalIDs := make([]string, 0, len(events))
	for _, ev := range events {
		externalIDs = append(externalIDs, ev.ExternalID)
	}
	existing, err := o.store.ExistingEventIDs(ctx, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("error checking existing events: %w", err)
	}

	fresh := make([]models.IngestedEvent, 0, len(events))
	for _, ev := range events {
		if existing[ev.ExternalID] {
			continue
		}
		ev.SourceID = sourceID
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	if _, err := o.store.InsertEvents(ctx, fresh); err != nil {
		return nil, fmt.Errorf("error inserting events: %w", err)
	}
	return fresh, nil
}

// storeHotspots dedups a poll's hotspot rows against the store before
// inserting, mirroring the event path. The insert itself still ignores
// external_id collisions as a second guard.
func (o *Orchestrator) storeHotspots(ctx context.Context, rows []models.SatelliteObservation) (int, error) {
	externalIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		externalIDs = append(externalIDs, r.ExternalID)
	}
	existing, err := o.store.ExistingHotspotIDs(ctx, externalIDs)
	if err != nil {
		return 0, fmt.Errorf("error checking existing hotspots: %w", err)
	}

	fresh := make([]models.SatelliteObservation, 0, len(rows))
	for _, r := range rows {
		if existing[r.ExternalID] {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	n, err := o.store.InsertHotspots(ctx, fresh)
	if err != nil {
		return 0, fmt.Errorf("error inserting hotspots: %w", err)
	}
	return n, nil
}

func descriptorOf(a Adapter) *models.Source {
	d := a.Descriptor()
	return &d
}
