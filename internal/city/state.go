package city

// N returns the number of locations.
func (r *Registry) N() int { return len(r.locations) }

// Rho returns the location capacity.
func (r *Registry) Rho() int { return r.rho }

// ID returns the external identifier of location i.
func (r *Registry) ID(i int) string { return r.locations[i].ID }

// IDs returns the external identifiers in location order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.locations))
	for i, l := range r.locations {
		ids[i] = l.ID
	}
	return ids
}

// IndexOf returns the location index of an external identifier.
func (r *Registry) IndexOf(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Amenity returns the amenity density of location i.
func (r *Registry) Amenity(i int) float64 { return r.amenity[i] }

// AmenityVector returns the amenity densities. Callers must not modify it.
func (r *Registry) AmenityVector() []float64 { return r.amenity }

// Beltline returns the beltline score of location i, treating an
// uncomputed score as 0 (no corridor benefit).
func (r *Registry) Beltline(i int) float64 {
	if !r.locations[i].HasBeltline() {
		return 0
	}
	return r.locations[i].Beltline
}

// Distance returns the normalised distance between locations i and j.
func (r *Registry) Distance(i, j int) float64 { return r.distances.At(i, j) }

// Population returns the occupant count of location i.
func (r *Registry) Population(i int) int { return r.population[i] }

// TotalPopulation returns the occupant count across all locations.
func (r *Registry) TotalPopulation() int {
	total := 0
	for _, p := range r.population {
		total += p
	}
	return total
}

// Threshold returns the endowment threshold of location i as of the last Update.
func (r *Registry) Threshold(i int) float64 { return r.threshold[i] }

// Upkeep returns 1 if location i was inhabited at the last Update, else 0.
func (r *Registry) Upkeep(i int) float64 { return r.upkeep[i] }

// Community returns the community score of location i as of the last Update.
func (r *Registry) Community(i int) float64 { return r.community[i] }

// Occupants returns a copy of the occupants of location i.
func (r *Registry) Occupants(i int) []Occupant {
	out := make([]Occupant, len(r.occupants[i].members))
	copy(out, r.occupants[i].members)
	return out
}

// OccupantCount returns the size of the occupant set at i, independent of
// the cached population.
func (r *Registry) OccupantCount(i int) int { return len(r.occupants[i].members) }

// PopulationHistory returns the per-location population series.
// Callers must not modify it.
func (r *Registry) PopulationHistory() [][]int { return r.popHist }

// CommunityHistory returns the per-location community score series.
// Callers must not modify it.
func (r *Registry) CommunityHistory() [][]float64 { return r.cmtHist }
