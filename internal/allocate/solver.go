// Package allocate matches available resources to disaster-zone needs.
// The model is a binary assignment problem: each resource serves at
// most one need and each need draws from at most one resource, scored
// by urgency, coverage share, expiry pressure and delivery distance.
// It is solved exactly with depth-first branch and bound over the
// needs, with an optimistic bound for pruning and a wall-clock budget.
package allocate

import (
	"math"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/geo"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

// DefaultMaxDistanceKm is the hard delivery radius.
const DefaultMaxDistanceKm = 500.0

// solveBudget bounds the search wall clock.
const solveBudget = 30 * time.Second

// Solver statuses.
const (
	StatusOptimal      = "optimal"
	StatusTrivialEmpty = "trivial_empty"
	StatusNoEligible   = "infeasible_no_eligible"
	StatusTimeout      = "solver_timeout"
)

// PriorityWeights tune the objective function.
type PriorityWeights struct {
	Urgency  float64 `json:"urgency_weight"`
	Distance float64 `json:"distance_weight"`
	Expiry   float64 `json:"expiry_weight"`
	Coverage float64 `json:"coverage_weight"`
}

func DefaultWeights() PriorityWeights {
	return PriorityWeights{Urgency: 1.0, Distance: 0.3, Expiry: 0.2, Coverage: 1.0}
}

// UnmetNeed is a requirement no eligible resource could serve.
type UnmetNeed struct {
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Urgency  float64 `json:"urgency"`
}

// Result is the allocation plan.
type Result struct {
	Allocations         []models.Allocation `json:"allocations"`
	UnmetNeeds          []UnmetNeed         `json:"unmet_needs"`
	CoveragePct         float64             `json:"coverage_pct"`
	EstimatedDeliveryKm float64             `json:"estimated_delivery_km"`
	OptimizationScore   float64             `json:"optimization_score"`
	SolverStatus        string              `json:"solver_status"`
}

// expiryScore is in [0, 1]; higher means closer to expiry, so the
// objective prefers to move it before it is wasted. Non-perishables
// score a neutral 0.5.
func expiryScore(r models.Resource, now time.Time) float64 {
	if r.ExpiryDate == nil {
		return 0.5
	}
	daysLeft := r.ExpiryDate.Sub(now).Hours() / 24
	if daysLeft < 0 {
		daysLeft = 0
	}
	return math.Exp(-0.05 * daysLeft)
}

// Solve runs the allocation optimizer. maxDistanceKm <= 0 uses the
// default radius; zero-value weights use the defaults.
func Solve(resources []models.Resource, needs []models.ResourceNeed, weights PriorityWeights, maxDistanceKm float64) Result {
	if weights == (PriorityWeights{}) {
		weights = DefaultWeights()
	}
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}

	result := Result{SolverStatus: StatusTrivialEmpty}
	if len(resources) == 0 || len(needs) == 0 {
		result.UnmetNeeds = allUnmet(needs)
		return result
	}

	// Pairwise distance, eligibility, and objective value.
	now := time.Now().UTC()
	totalNeedQty := 0.0
	for _, n := range needs {
		totalNeedQty += n.Quantity
	}
	if totalNeedQty < 1 {
		totalNeedQty = 1
	}

	nRes, nNeeds := len(resources), len(needs)
	dist := make([][]float64, nRes)
	value := make([][]float64, nRes)
	eligible := make([][]bool, nRes)
	anyEligible := false
	for i, r := range resources {
		dist[i] = make([]float64, nNeeds)
		value[i] = make([]float64, nNeeds)
		eligible[i] = make([]bool, nNeeds)
		expiry := expiryScore(r, now) * weights.Expiry
		for j, n := range needs {
			d := geo.HaversineKm(r.Latitude, r.Longitude, n.ZoneLat, n.ZoneLon)
			dist[i][j] = d
			ok := r.Type == n.Type && d <= maxDistanceKm && r.Quantity >= n.Quantity
			eligible[i][j] = ok
			if !ok {
				continue
			}
			anyEligible = true
			value[i][j] = n.Urgency*weights.Urgency +
				(n.Quantity/totalNeedQty)*weights.Coverage +
				expiry -
				(d/math.Max(maxDistanceKm, 1))*weights.Distance
		}
	}

	if !anyEligible {
		result.SolverStatus = StatusNoEligible
		result.UnmetNeeds = allUnmet(needs)
		return result
	}

	s := &searcher{
		value:    value,
		eligible: eligible,
		nRes:     nRes,
		nNeeds:   nNeeds,
		used:     make([]bool, nRes),
		assign:   make([]int, nNeeds),
		best:     make([]int, nNeeds),
		deadline: now.Add(solveBudget),
	}
	for j := range s.assign {
		s.assign[j] = -1
		s.best[j] = -1
	}
	s.bestValue = math.Inf(-1)
	s.search(0, 0)

	if s.timedOut {
		result.SolverStatus = StatusTimeout
	} else {
		result.SolverStatus = StatusOptimal
	}

	// Extract the plan from the best assignment found.
	met := 0
	totalDist := 0.0
	for j, i := range s.best {
		if i < 0 {
			result.UnmetNeeds = append(result.UnmetNeeds, UnmetNeed{
				Type: needs[j].Type, Quantity: needs[j].Quantity, Urgency: needs[j].Urgency,
			})
			continue
		}
		met++
		totalDist += dist[i][j]
		result.Allocations = append(result.Allocations, models.Allocation{
			ResourceID: resources[i].ID,
			Type:       resources[i].Type,
			Quantity:   needs[j].Quantity,
			LocationID: resources[i].LocationID,
			DistanceKm: round2(dist[i][j]),
			ExpiryDate: resources[i].ExpiryDate,
		})
	}

	result.CoveragePct = round2(float64(met) / float64(nNeeds) * 100)
	result.EstimatedDeliveryKm = round2(totalDist)
	result.OptimizationScore = math.Round(float64(met)/float64(nNeeds)*10000) / 10000
	return result
}

type searcher struct {
	value    [][]float64
	eligible [][]bool
	nRes     int
	nNeeds   int

	used      []bool
	assign    []int
	best      []int
	bestValue float64

	deadline time.Time
	timedOut bool
	steps    int
}

// search assigns needs left to right. At each need it tries every free
// eligible resource plus the skip branch, pruning when the current
// value plus an optimistic remainder cannot beat the incumbent.
func (s *searcher) search(j int, current float64) {
	s.steps++
	if s.steps%4096 == 0 && time.Now().After(s.deadline) {
		s.timedOut = true
		return
	}

	if j == s.nNeeds {
		if current > s.bestValue {
			s.bestValue = current
			copy(s.best, s.assign)
		}
		return
	}

	if current+s.optimistic(j) <= s.bestValue {
		return
	}

	for i := 0; i < s.nRes; i++ {
		if s.timedOut {
			return
		}
		if s.used[i] || !s.eligible[i][j] || s.value[i][j] <= 0 {
			continue
		}
		s.used[i] = true
		s.assign[j] = i
		s.search(j+1, current+s.value[i][j])
		s.assign[j] = -1
		s.used[i] = false
	}
	if !s.timedOut {
		s.search(j+1, current)
	}
}

// optimistic is an upper bound on the value attainable from need j on:
// the best positive value per remaining need, ignoring resource reuse.
func (s *searcher) optimistic(j int) float64 {
	bound := 0.0
	for ; j < s.nNeeds; j++ {
		best := 0.0
		for i := 0; i < s.nRes; i++ {
			if s.used[i] || !s.eligible[i][j] {
				continue
			}
			if s.value[i][j] > best {
				best = s.value[i][j]
			}
		}
		bound += best
	}
	return bound
}

func allUnmet(needs []models.ResourceNeed) []UnmetNeed {
	out := make([]UnmetNeed, 0, len(needs))
	for _, n := range needs {
		out = append(out, UnmetNeed{Type: n.Type, Quantity: n.Quantity, Urgency: n.Urgency})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
