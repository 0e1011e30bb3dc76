// Package models contains GORM persistence models for the tanker billing tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns; each model has ToDomain and a FromDomain constructor.
//
// Dates are stored as ISO "YYYY-MM-DD" strings so that ordering and equality
// behave the same on PostgreSQL and SQLite.
package models
