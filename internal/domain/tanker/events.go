package tanker

import "github.com/arungoks/tankerapp/internal/domain/shared"

// Aggregate types
const (
	AggregateTypeApartment    = "Apartment"
	AggregateTypeTankerEvent  = "TankerEvent"
	AggregateTypeBillingCycle = "BillingCycle"
)

// Event types
const (
	EventTypeTankerCountChanged = "TankerCountChanged"
	EventTypeVacancyToggled     = "VacancyToggled"
	EventTypeOccupancySet       = "OccupancySet"
	EventTypeCycleClosed        = "CycleClosed"
	EventTypeRosterImported     = "RosterImported"
)

// TankerCountChangedEvent is published when a date's tanker count changes
type TankerCountChangedEvent struct {
	shared.BaseDomainEvent
	Date     Date `json:"date"`
	OldCount int  `json:"old_count"`
	NewCount int  `json:"new_count"`
}

// NewTankerCountChangedEvent creates a TankerCountChangedEvent
func NewTankerCountChangedEvent(date Date, oldCount, newCount int) *TankerCountChangedEvent {
	return &TankerCountChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTankerCountChanged, AggregateTypeTankerEvent, date.String()),
		Date:            date,
		OldCount:        oldCount,
		NewCount:        newCount,
	}
}

// VacancyToggledEvent is published when an apartment's vacancy on a date is set or cleared
type VacancyToggledEvent struct {
	shared.BaseDomainEvent
	Date    Date `json:"date"`
	Vacant  bool `json:"vacant"`
	Changed bool `json:"changed"` // false when the call was a no-op
}

// NewVacancyToggledEvent creates a VacancyToggledEvent
func NewVacancyToggledEvent(apartmentNumber string, date Date, vacant, changed bool) *VacancyToggledEvent {
	return &VacancyToggledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVacancyToggled, AggregateTypeApartment, apartmentNumber),
		Date:            date,
		Vacant:          vacant,
		Changed:         changed,
	}
}

// OccupancySetEvent is published after SetOccupancy commits
type OccupancySetEvent struct {
	shared.BaseDomainEvent
	Date      Date `json:"date"`
	Occupancy int  `json:"occupancy"`
}

// NewOccupancySetEvent creates an OccupancySetEvent
func NewOccupancySetEvent(apartmentNumber string, date Date, occupancy int) *OccupancySetEvent {
	return &OccupancySetEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOccupancySet, AggregateTypeApartment, apartmentNumber),
		Date:            date,
		Occupancy:       occupancy,
	}
}

// CycleClosedEvent is published after a billing cycle is archived
type CycleClosedEvent struct {
	shared.BaseDomainEvent
	Cycle BillingCycle `json:"cycle"`
}

// NewCycleClosedEvent creates a CycleClosedEvent
func NewCycleClosedEvent(cycle BillingCycle) *CycleClosedEvent {
	return &CycleClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCycleClosed, AggregateTypeBillingCycle, cycle.ID.String()),
		Cycle:           cycle,
	}
}

// RosterImportedEvent is published after apartments are seeded or imported
type RosterImportedEvent struct {
	shared.BaseDomainEvent
	Count int `json:"count"`
}

// NewRosterImportedEvent creates a RosterImportedEvent
func NewRosterImportedEvent(count int) *RosterImportedEvent {
	return &RosterImportedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRosterImported, AggregateTypeApartment, "roster"),
		Count:           count,
	}
}
