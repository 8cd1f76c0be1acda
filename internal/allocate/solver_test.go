package allocate

import (
	"testing"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func res(id, typ string, qty float64, lat, lon float64) models.Resource {
	return models.Resource{
		ID: id, Type: typ, Quantity: qty, Priority: 5,
		Status: models.ResourceAvailable, LocationID: "loc-" + id,
		Latitude: lat, Longitude: lon,
	}
}

func need(typ string, qty, urgency, lat, lon float64) models.ResourceNeed {
	return models.ResourceNeed{Type: typ, Quantity: qty, Urgency: urgency, ZoneLat: lat, ZoneLon: lon}
}

func TestSolve_EmptyInputs(t *testing.T) {
	r := Solve(nil, []models.ResourceNeed{need("Water", 10, 8, 0, 0)}, DefaultWeights(), 0)
	if r.SolverStatus != StatusTrivialEmpty {
		t.Errorf("expected trivial_empty, got %s", r.SolverStatus)
	}
	if len(r.UnmetNeeds) != 1 {
		t.Errorf("expected 1 unmet need, got %d", len(r.UnmetNeeds))
	}

	r = Solve([]models.Resource{res("r1", "Water", 10, 0, 0)}, nil, DefaultWeights(), 0)
	if r.SolverStatus != StatusTrivialEmpty {
		t.Errorf("expected trivial_empty for no needs, got %s", r.SolverStatus)
	}
}

func TestSolve_SimpleMatch(t *testing.T) {
	resources := []models.Resource{res("r1", "Water", 100, 35.0, 139.0)}
	needs := []models.ResourceNeed{need("Water", 50, 8, 35.1, 139.1)}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusOptimal {
		t.Fatalf("expected optimal, got %s", r.SolverStatus)
	}
	if len(r.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(r.Allocations))
	}
	a := r.Allocations[0]
	if a.ResourceID != "r1" {
		t.Errorf("expected r1 allocated, got %s", a.ResourceID)
	}
	if a.Quantity != 50 {
		t.Errorf("expected allocation quantity 50 (the need), got %f", a.Quantity)
	}
	if r.CoveragePct != 100 {
		t.Errorf("expected 100%% coverage, got %f", r.CoveragePct)
	}
	if len(r.UnmetNeeds) != 0 {
		t.Errorf("expected no unmet needs, got %d", len(r.UnmetNeeds))
	}
}

func TestSolve_TypeMismatch(t *testing.T) {
	resources := []models.Resource{res("r1", "Food", 100, 35.0, 139.0)}
	needs := []models.ResourceNeed{need("Water", 50, 8, 35.0, 139.0)}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusNoEligible {
		t.Errorf("expected infeasible_no_eligible, got %s", r.SolverStatus)
	}
	if len(r.UnmetNeeds) != 1 {
		t.Errorf("expected the need unmet, got %d", len(r.UnmetNeeds))
	}
}

func TestSolve_DistanceCap(t *testing.T) {
	// Resource on another continent.
	resources := []models.Resource{res("r1", "Water", 100, 0, 0)}
	needs := []models.ResourceNeed{need("Water", 50, 8, 35.0, 139.0)}

	r := Solve(resources, needs, DefaultWeights(), 500)
	if r.SolverStatus != StatusNoEligible {
		t.Errorf("expected infeasible beyond distance cap, got %s", r.SolverStatus)
	}
}

func TestSolve_InsufficientQuantity(t *testing.T) {
	resources := []models.Resource{res("r1", "Water", 10, 35.0, 139.0)}
	needs := []models.ResourceNeed{need("Water", 50, 8, 35.0, 139.0)}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusNoEligible {
		t.Errorf("expected infeasible for short quantity, got %s", r.SolverStatus)
	}
}

func TestSolve_ResourceUsedAtMostOnce(t *testing.T) {
	resources := []models.Resource{res("r1", "Water", 100, 35.0, 139.0)}
	needs := []models.ResourceNeed{
		need("Water", 50, 8, 35.0, 139.0),
		need("Water", 40, 9, 35.0, 139.0),
	}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusOptimal {
		t.Fatalf("expected optimal, got %s", r.SolverStatus)
	}
	if len(r.Allocations) != 1 {
		t.Errorf("expected single allocation from single resource, got %d", len(r.Allocations))
	}
	if len(r.UnmetNeeds) != 1 {
		t.Errorf("expected one unmet need, got %d", len(r.UnmetNeeds))
	}
	// The higher-urgency need wins.
	if r.Allocations[0].Quantity != 40 {
		t.Errorf("expected the urgency-9 need served, got quantity %f", r.Allocations[0].Quantity)
	}
}

func TestSolve_PrefersCloserResource(t *testing.T) {
	resources := []models.Resource{
		res("far", "Water", 100, 37.0, 141.0),
		res("near", "Water", 100, 35.05, 139.05),
	}
	needs := []models.ResourceNeed{need("Water", 50, 8, 35.0, 139.0)}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusOptimal {
		t.Fatalf("expected optimal, got %s", r.SolverStatus)
	}
	if r.Allocations[0].ResourceID != "near" {
		t.Errorf("expected nearer resource chosen, got %s", r.Allocations[0].ResourceID)
	}
}

func TestSolve_PrefersExpiringResource(t *testing.T) {
	soon := time.Now().UTC().Add(24 * time.Hour)
	later := time.Now().UTC().Add(120 * 24 * time.Hour)

	perishable := res("perishable", "Food", 100, 35.0, 139.0)
	perishable.ExpiryDate = &soon
	durable := res("durable", "Food", 100, 35.0, 139.0)
	durable.ExpiryDate = &later

	needs := []models.ResourceNeed{need("Food", 50, 8, 35.0, 139.0)}

	r := Solve([]models.Resource{durable, perishable}, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusOptimal {
		t.Fatalf("expected optimal, got %s", r.SolverStatus)
	}
	if r.Allocations[0].ResourceID != "perishable" {
		t.Errorf("expected the expiring resource preferred, got %s", r.Allocations[0].ResourceID)
	}
}

func TestSolve_MultipleNeedsMaximizeCoverage(t *testing.T) {
	resources := []models.Resource{
		res("w1", "Water", 100, 35.0, 139.0),
		res("f1", "Food", 100, 35.0, 139.0),
		res("m1", "Medical", 100, 35.0, 139.0),
	}
	needs := []models.ResourceNeed{
		need("Water", 50, 8, 35.1, 139.1),
		need("Food", 30, 6, 35.1, 139.1),
		need("Medical", 20, 9, 35.1, 139.1),
	}

	r := Solve(resources, needs, DefaultWeights(), 0)
	if r.SolverStatus != StatusOptimal {
		t.Fatalf("expected optimal, got %s", r.SolverStatus)
	}
	if len(r.Allocations) != 3 {
		t.Errorf("expected all 3 needs covered, got %d", len(r.Allocations))
	}
	if r.CoveragePct != 100 {
		t.Errorf("expected full coverage, got %f", r.CoveragePct)
	}
	if r.OptimizationScore != 1.0 {
		t.Errorf("expected optimization score 1.0, got %f", r.OptimizationScore)
	}
	if r.EstimatedDeliveryKm <= 0 {
		t.Error("expected positive delivery distance")
	}
}

func TestExpiryScore(t *testing.T) {
	now := time.Now().UTC()

	r := res("r1", "Food", 10, 0, 0)
	if got := expiryScore(r, now); got != 0.5 {
		t.Errorf("expected neutral 0.5 for non-perishable, got %f", got)
	}

	today := now
	r.ExpiryDate = &today
	if got := expiryScore(r, now); got < 0.99 {
		t.Errorf("expected ~1.0 for expiring today, got %f", got)
	}

	distant := now.Add(90 * 24 * time.Hour)
	r.ExpiryDate = &distant
	if got := expiryScore(r, now); got > 0.02 {
		t.Errorf("expected near-zero for 90 days out, got %f", got)
	}

	past := now.Add(-24 * time.Hour)
	r.ExpiryDate = &past
	if got := expiryScore(r, now); got != 1.0 {
		t.Errorf("expected 1.0 for already expired, got %f", got)
	}
}
