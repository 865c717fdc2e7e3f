package exchange

import "strings"

// VenueKind names one of the three supported venue categories (§6.2).
type VenueKind string

const (
	VenueCentralizedPerp VenueKind = "centralized_perp"
	VenueOnchainSwap     VenueKind = "onchain_swap"
	VenueSolanaPerp      VenueKind = "solana_perp"
)

// Router resolves a symbol (and optional venue hint from an Opportunity) to
// a concrete VenueAdapter. Adapters are discovered at process start, not via
// runtime reflection.
type Router struct {
	adapters  map[VenueKind]VenueAdapter
	universes map[VenueKind]map[string]bool
}

// NewRouter constructs a router over the given adapters and their symbol
// universes.
func NewRouter(adapters map[VenueKind]VenueAdapter, universes map[VenueKind][]string) *Router {
	r := &Router{
		adapters:  adapters,
		universes: make(map[VenueKind]map[string]bool, len(universes)),
	}
	for kind, symbols := range universes {
		set := make(map[string]bool, len(symbols))
		for _, s := range symbols {
			set[strings.ToUpper(s)] = true
		}
		r.universes[kind] = set
	}
	return r
}

// Resolve picks an adapter for a symbol. venueHint, if non-empty and a known
// VenueKind, takes precedence; otherwise the symbol's universe membership
// decides, defaulting to the centralized-perp venue.
func (r *Router) Resolve(symbol, venueHint string) (VenueAdapter, bool) {
	symbol = strings.ToUpper(symbol)

	if venueHint != "" {
		if adapter, ok := r.adapters[VenueKind(venueHint)]; ok {
			return adapter, true
		}
	}

	for kind, set := range r.universes {
		if set[symbol] {
			if adapter, ok := r.adapters[kind]; ok {
				return adapter, true
			}
		}
	}

	adapter, ok := r.adapters[VenueCentralizedPerp]
	return adapter, ok
}

// Universe returns the venue kind a symbol belongs to, or
// VenueCentralizedPerp if it isn't explicitly listed in any universe.
func (r *Router) Universe(symbol string) VenueKind {
	symbol = strings.ToUpper(symbol)
	for kind, set := range r.universes {
		if set[symbol] {
			return kind
		}
	}
	return VenueCentralizedPerp
}
