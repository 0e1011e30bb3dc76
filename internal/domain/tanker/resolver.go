package tanker

// Resolution is the effective occupancy of one apartment on one date.
// Vacant is always equivalent to Occupancy == 0.
type Resolution struct {
	Occupancy int
	Vacant    bool
}

func resolution(occupancy int) Resolution {
	return Resolution{Occupancy: occupancy, Vacant: occupancy == 0}
}

// Resolve returns the effective occupancy of apt on date. Precedence:
//  1. a vacancy record covering the date makes the apartment vacant
//  2. an override for (apt, date) sets the occupancy
//  3. otherwise the apartment's default occupancy applies
func Resolve(apt Apartment, date Date, snapshot AggregateSnapshot) Resolution {
	for _, v := range snapshot.Vacancies {
		if v.CoversApartmentOn(apt.Number, date) {
			return resolution(0)
		}
	}
	for _, o := range snapshot.Overrides {
		if o.ApartmentNumber == apt.Number && o.Date == date {
			return resolution(o.Occupancy)
		}
	}
	return resolution(apt.DefaultOccupancy)
}

// Resolver answers Resolve queries against a snapshot indexed by apartment
type Resolver struct {
	vacancies map[string][]VacancyRecord
	overrides map[OverrideKey]int
}

// NewResolver indexes the vacancy and override rows of snapshot
func NewResolver(snapshot AggregateSnapshot) *Resolver {
	r := &Resolver{
		vacancies: make(map[string][]VacancyRecord),
		overrides: make(map[OverrideKey]int, len(snapshot.Overrides)),
	}
	for _, v := range snapshot.Vacancies {
		r.vacancies[v.ApartmentNumber] = append(r.vacancies[v.ApartmentNumber], v)
	}
	for _, o := range snapshot.Overrides {
		r.overrides[o.Key()] = o.Occupancy
	}
	return r
}

// Resolve has the same semantics as the package-level Resolve
func (r *Resolver) Resolve(apt Apartment, date Date) Resolution {
	for _, v := range r.vacancies[apt.Number] {
		if v.Covers(date) {
			return resolution(0)
		}
	}
	if occupancy, ok := r.overrides[OverrideKey{ApartmentNumber: apt.Number, Date: date}]; ok {
		return resolution(occupancy)
	}
	return resolution(apt.DefaultOccupancy)
}

// IsVacant reports whether an explicit vacancy record covers (apartmentNumber, date)
func (r *Resolver) IsVacant(apartmentNumber string, date Date) bool {
	for _, v := range r.vacancies[apartmentNumber] {
		if v.Covers(date) {
			return true
		}
	}
	return false
}
