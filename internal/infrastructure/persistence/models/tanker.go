package models

import (
	"time"

	"github.com/arungoks/tankerapp/internal/domain/tanker"
)

// Table names, also used as change-notification topics
const (
	TableApartments         = "apartments"
	TableTankerEvents       = "tanker_events"
	TableVacancyRecords     = "vacancy_records"
	TableOccupancyOverrides = "occupancy_overrides"
	TableBillingCycles      = "billing_cycles"
	TableCycleBoundary      = "cycle_boundary"
)

// CurrentBoundaryKey is the key of the single cycle_boundary row
const CurrentBoundaryKey = "current"

// ApartmentModel is the persistence model for a roster entry
type ApartmentModel struct {
	Number           string    `gorm:"type:varchar(20);primaryKey"`
	DefaultOccupancy int       `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ApartmentModel) TableName() string {
	return TableApartments
}

// ToDomain converts the model to a domain Apartment
func (m *ApartmentModel) ToDomain() tanker.Apartment {
	return tanker.Apartment{Number: m.Number, DefaultOccupancy: m.DefaultOccupancy}
}

// ApartmentModelFromDomain creates a persistence model from a domain Apartment
func ApartmentModelFromDomain(a tanker.Apartment) *ApartmentModel {
	return &ApartmentModel{Number: a.Number, DefaultOccupancy: a.DefaultOccupancy}
}

// TankerEventModel is the persistence model for a tanker delivery date
type TankerEventModel struct {
	Date      string    `gorm:"type:varchar(10);primaryKey"`
	Count     int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TankerEventModel) TableName() string {
	return TableTankerEvents
}

// ToDomain converts the model to a domain TankerEvent
func (m *TankerEventModel) ToDomain() (tanker.TankerEvent, error) {
	d, err := tanker.ParseDate(m.Date)
	if err != nil {
		return tanker.TankerEvent{}, err
	}
	return tanker.TankerEvent{Date: d, Count: m.Count}, nil
}

// TankerEventModelFromDomain creates a persistence model from a domain TankerEvent
func TankerEventModelFromDomain(e tanker.TankerEvent) *TankerEventModel {
	return &TankerEventModel{Date: e.Date.String(), Count: e.Count}
}

// VacancyRecordModel is the persistence model for a vacancy record
type VacancyRecordModel struct {
	BaseModel
	ApartmentNumber string  `gorm:"type:varchar(20);not null;index"`
	StartDate       string  `gorm:"type:varchar(10);not null"`
	EndDate         *string `gorm:"type:varchar(10)"`
}

// TableName returns the table name for GORM
func (VacancyRecordModel) TableName() string {
	return TableVacancyRecords
}

// ToDomain converts the model to a domain VacancyRecord
func (m *VacancyRecordModel) ToDomain() (tanker.VacancyRecord, error) {
	start, err := tanker.ParseDate(m.StartDate)
	if err != nil {
		return tanker.VacancyRecord{}, err
	}
	v := tanker.VacancyRecord{ID: m.ID, ApartmentNumber: m.ApartmentNumber, StartDate: start}
	if m.EndDate != nil {
		end, err := tanker.ParseDate(*m.EndDate)
		if err != nil {
			return tanker.VacancyRecord{}, err
		}
		v.EndDate = &end
	}
	return v, nil
}

// VacancyRecordModelFromDomain creates a persistence model from a domain VacancyRecord
func VacancyRecordModelFromDomain(v tanker.VacancyRecord) *VacancyRecordModel {
	m := &VacancyRecordModel{
		BaseModel:       BaseModel{ID: v.ID},
		ApartmentNumber: v.ApartmentNumber,
		StartDate:       v.StartDate.String(),
	}
	if v.EndDate != nil {
		end := v.EndDate.String()
		m.EndDate = &end
	}
	return m
}

// OccupancyOverrideModel is the persistence model for a single-day occupancy override
type OccupancyOverrideModel struct {
	ApartmentNumber string    `gorm:"type:varchar(20);primaryKey"`
	Date            string    `gorm:"type:varchar(10);primaryKey"`
	Occupancy       int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OccupancyOverrideModel) TableName() string {
	return TableOccupancyOverrides
}

// ToDomain converts the model to a domain OccupancyOverride
func (m *OccupancyOverrideModel) ToDomain() (tanker.OccupancyOverride, error) {
	d, err := tanker.ParseDate(m.Date)
	if err != nil {
		return tanker.OccupancyOverride{}, err
	}
	return tanker.OccupancyOverride{ApartmentNumber: m.ApartmentNumber, Date: d, Occupancy: m.Occupancy}, nil
}

// OccupancyOverrideModelFromDomain creates a persistence model from a domain OccupancyOverride
func OccupancyOverrideModelFromDomain(o tanker.OccupancyOverride) *OccupancyOverrideModel {
	return &OccupancyOverrideModel{ApartmentNumber: o.ApartmentNumber, Date: o.Date.String(), Occupancy: o.Occupancy}
}

// BillingCycleModel is the persistence model for an archived billing cycle
type BillingCycleModel struct {
	BaseModel
	StartDate    string `gorm:"type:varchar(10);not null;uniqueIndex"`
	EndDate      string `gorm:"type:varchar(10);not null;uniqueIndex"`
	TotalTankers int    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BillingCycleModel) TableName() string {
	return TableBillingCycles
}

// ToDomain converts the model to a domain BillingCycle
func (m *BillingCycleModel) ToDomain() (tanker.BillingCycle, error) {
	start, err := tanker.ParseDate(m.StartDate)
	if err != nil {
		return tanker.BillingCycle{}, err
	}
	end, err := tanker.ParseDate(m.EndDate)
	if err != nil {
		return tanker.BillingCycle{}, err
	}
	return tanker.BillingCycle{
		BaseEntity:           m.BaseModel.ToDomain(),
		StartDate:            start,
		EndDate:              end,
		TotalTankersSnapshot: m.TotalTankers,
	}, nil
}

// BillingCycleModelFromDomain creates a persistence model from a domain BillingCycle
func BillingCycleModelFromDomain(c tanker.BillingCycle) *BillingCycleModel {
	m := &BillingCycleModel{
		StartDate:    c.StartDate.String(),
		EndDate:      c.EndDate.String(),
		TotalTankers: c.TotalTankersSnapshot,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}

// CycleBoundaryModel is the single-row "last report date" table
type CycleBoundaryModel struct {
	Key       string    `gorm:"column:boundary_key;type:varchar(20);primaryKey"`
	StartDate string    `gorm:"type:varchar(10);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CycleBoundaryModel) TableName() string {
	return TableCycleBoundary
}

// ToDomain converts the model to a domain CycleBoundary
func (m *CycleBoundaryModel) ToDomain() (tanker.CycleBoundary, error) {
	d, err := tanker.ParseDate(m.StartDate)
	if err != nil {
		return tanker.CycleBoundary{}, err
	}
	return tanker.CycleBoundary{StartDate: d}, nil
}

// CycleBoundaryModelFromDomain creates the boundary row from a domain CycleBoundary
func CycleBoundaryModelFromDomain(b tanker.CycleBoundary) *CycleBoundaryModel {
	return &CycleBoundaryModel{Key: CurrentBoundaryKey, StartDate: b.StartDate.String()}
}

// AllModels lists every model, in creation order, for AutoMigrate
func AllModels() []any {
	return []any{
		&ApartmentModel{},
		&TankerEventModel{},
		&VacancyRecordModel{},
		&OccupancyOverrideModel{},
		&BillingCycleModel{},
		&CycleBoundaryModel{},
	}
}
