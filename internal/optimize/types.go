// Package optimize calls the plant's fuel-mix optimizer API and falls back
// to a local greedy heuristic when the API is unavailable. The optimizer
// implements the 50/50 protocol: half the kiln feed is petcoke, the other
// half is an optimized blend of waste streams maximizing calorific value
// under quality constraints.
package optimize

import "errors"

// Petcoke base-load properties used by the 50/50 protocol. The petcoke half
// of the mix is fixed; only the waste half is optimized.
const (
	PetcokePCI      = 8200
	PetcokeChlorine = 0.0005
	PetcokeSulfur   = 0.04
	PetcokeHumidity = 0.01
)

// PetcokeMixKey is the mix entry name the solver reports for the fixed base
// load.
const PetcokeMixKey = "Petcoke (Base)"

// ErrInconsistentResult is returned when a solver's reported objective value
// does not match the PCI recomputed from its own mix.
var ErrInconsistentResult = errors.New("optimize: objective value inconsistent with mix")

// WasteItem describes one waste stream offered to the solver.
type WasteItem struct {
	Name     string  `json:"name" validate:"required"`
	PCI      float64 `json:"pci" validate:"gt=0"`
	Chlorine float64 `json:"chlorine" validate:"gte=0"`
	Sulfur   float64 `json:"sulfur" validate:"gte=0"`
	Humidity float64 `json:"humidity" validate:"gte=0,lte=1"`
	Stock    float64 `json:"stock" validate:"gte=0"`
}

// Constraints bound the quality of the total mix. Zero values mean
// unconstrained and are omitted from the request.
type Constraints struct {
	MaxChlorine float64 `json:"max_chlorine,omitempty" validate:"gte=0"`
	MaxHumidity float64 `json:"max_humidity,omitempty" validate:"gte=0,lte=1"`
	MaxSulfur   float64 `json:"max_sulfur,omitempty" validate:"gte=0"`
	MinPCI      float64 `json:"min_pci,omitempty" validate:"gte=0"`
}

// Request is the optimizer API payload.
type Request struct {
	WasteData   []WasteItem `json:"waste_data" validate:"required,min=1,dive"`
	Constraints Constraints `json:"constraints"`
}

// Result is the solved mix. Mix maps component name to its percentage of the
// total feed (0-100); the petcoke base appears under [PetcokeMixKey] at 50.
// Details carries the resulting quality metrics (final_chlorine,
// final_humidity, final_sulfur) plus the protocol label.
type Result struct {
	Status         string             `json:"status"`
	ObjectiveValue float64            `json:"objective_value"`
	Mix            map[string]float64 `json:"mix"`
	Details        map[string]any     `json:"details"`
}

// RecomputePCI evaluates the total-mix PCI implied by a result's mix
// percentages against the request's waste properties.
func RecomputePCI(req Request, res *Result) float64 {
	pciByName := make(map[string]float64, len(req.WasteData))
	for _, w := range req.WasteData {
		pciByName[w.Name] = w.PCI
	}
	var total float64
	for name, pct := range res.Mix {
		fraction := pct / 100
		if name == PetcokeMixKey {
			total += fraction * PetcokePCI
			continue
		}
		total += fraction * pciByName[name]
	}
	return total
}
