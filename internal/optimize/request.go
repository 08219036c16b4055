package optimize

import "github.com/BrightProgrammer7/OptiBlend/internal/inventory"

// DefaultConstraints are the plant's standing quality limits, applied when
// an optimization is requested without explicit constraints.
var DefaultConstraints = Constraints{
	MaxChlorine: 0.03,
	MaxHumidity: 0.25,
	MaxSulfur:   1.0,
	MinPCI:      3000,
}

// RequestFromStreams builds an optimizer request from the current inventory,
// so the solved mix only draws on streams that actually have stock.
func RequestFromStreams(streams []inventory.Stream, c Constraints) Request {
	items := make([]WasteItem, 0, len(streams))
	for _, s := range streams {
		items = append(items, WasteItem{
			Name:     s.Name,
			PCI:      s.PCI,
			Chlorine: s.Chlorine,
			Sulfur:   s.Sulfur,
			Humidity: s.Humidity,
			Stock:    s.StockTons,
		})
	}
	return Request{WasteData: items, Constraints: c}
}
