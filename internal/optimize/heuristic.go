package optimize

import (
	"context"
	"math"
	"sort"
)

// Heuristic statuses. The status string tells operators the mix came from
// the local fallback rather than the LP solver behind the API.
const (
	StatusHeuristic           = "local-heuristic"
	StatusHeuristicInfeasible = "local-heuristic-infeasible"
)

// Heuristic is the local fallback solver. It fixes the petcoke half of the
// feed and fills the waste half greedily in descending PCI order, capping
// each stream at the fraction the quality constraints still allow. It finds
// good (not provably optimal) mixes, which is enough to keep the console
// useful while the API is down.
type Heuristic struct{}

var _ Solver = (*Heuristic)(nil)

// Solve computes a 50/50 mix for req. It never fails; an infeasible request
// is reported through the result status, mirroring how the LP solver
// reports infeasibility.
func (Heuristic) Solve(_ context.Context, req Request) (*Result, error) {
	type alloc struct {
		item     WasteItem
		fraction float64
	}

	// Petcoke contributions to the running quality totals.
	var (
		chlorine = 0.5 * PetcokeChlorine
		humidity = 0.5 * PetcokeHumidity
		sulfur   = 0.5 * PetcokeSulfur
	)

	candidates := make([]WasteItem, 0, len(req.WasteData))
	for _, w := range req.WasteData {
		if w.Stock > 0 {
			candidates = append(candidates, w)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].PCI > candidates[j].PCI })

	remaining := 0.5
	var allocs []alloc
	for _, w := range candidates {
		if remaining <= 1e-9 {
			break
		}
		f := remaining
		// Cap the fraction at what each max constraint still allows.
		f = math.Min(f, headroom(req.Constraints.MaxChlorine, chlorine, w.Chlorine))
		f = math.Min(f, headroom(req.Constraints.MaxHumidity, humidity, w.Humidity))
		f = math.Min(f, headroom(req.Constraints.MaxSulfur, sulfur, w.Sulfur))
		if f <= 1e-9 {
			continue
		}
		allocs = append(allocs, alloc{item: w, fraction: f})
		chlorine += f * w.Chlorine
		humidity += f * w.Humidity
		sulfur += f * w.Sulfur
		remaining -= f
	}

	objective := 0.5 * PetcokePCI
	mix := map[string]float64{PetcokeMixKey: 50.0}
	for _, a := range allocs {
		objective += a.fraction * a.item.PCI
		mix[a.item.Name] = round2(a.fraction * 100)
	}

	status := StatusHeuristic
	if remaining > 1e-6 || objective < req.Constraints.MinPCI {
		// Cannot fill the waste half within the constraints, or the mix
		// misses the minimum calorific value.
		status = StatusHeuristicInfeasible
	}

	return &Result{
		Status:         status,
		ObjectiveValue: round2(objective),
		Mix:            mix,
		Details: map[string]any{
			"final_chlorine": round5(chlorine),
			"final_humidity": round5(humidity),
			"final_sulfur":   round5(sulfur),
			"protocol":       "50/50 Nexus",
		},
	}, nil
}

// headroom returns the largest additional fraction of a component with
// coefficient coeff that keeps the running total within limit. A zero limit
// means unconstrained.
func headroom(limit, total, coeff float64) float64 {
	if limit <= 0 || coeff <= 0 {
		return math.Inf(1)
	}
	h := (limit - total) / coeff
	if h < 0 {
		return 0
	}
	return h
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
