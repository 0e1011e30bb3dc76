package tanker

// AggregateSnapshot is one consistent view over the four source collections
type AggregateSnapshot struct {
	Apartments []Apartment
	Events     []TankerEvent
	Vacancies  []VacancyRecord
	Overrides  []OccupancyOverride
}

// FindApartment returns the roster entry for number
func (s AggregateSnapshot) FindApartment(number string) (Apartment, bool) {
	for _, a := range s.Apartments {
		if a.Number == number {
			return a, true
		}
	}
	return Apartment{}, false
}

// IdentityMismatch is a vacancy or override row whose apartment is not in the roster
type IdentityMismatch struct {
	ApartmentNumber string
	Kind            string // "vacancy" or "override"
	Date            Date   // vacancy start date or override date
}

// FindIdentityMismatches lists the orphan rows that bill computation ignores
func FindIdentityMismatches(s AggregateSnapshot) []IdentityMismatch {
	roster := make(map[string]struct{}, len(s.Apartments))
	for _, a := range s.Apartments {
		roster[a.Number] = struct{}{}
	}

	var out []IdentityMismatch
	for _, v := range s.Vacancies {
		if _, ok := roster[v.ApartmentNumber]; !ok {
			out = append(out, IdentityMismatch{ApartmentNumber: v.ApartmentNumber, Kind: "vacancy", Date: v.StartDate})
		}
	}
	for _, o := range s.Overrides {
		if _, ok := roster[o.ApartmentNumber]; !ok {
			out = append(out, IdentityMismatch{ApartmentNumber: o.ApartmentNumber, Kind: "override", Date: o.Date})
		}
	}
	return out
}
