// Package tanker provides the domain model for water-tanker billing in a
// residential block.
//
// The package covers:
//   - The apartment roster, keyed by apartment number
//   - Tanker deliveries (one event per calendar date)
//   - Vacancy records and single-day occupancy overrides
//   - Occupancy resolution (vacancy, then override, then the apartment default)
//   - Bill computation over a (from, to] date range
//   - Billing cycles and the open cycle boundary
//
// Resolution and bill computation are pure functions over an AggregateSnapshot.
// Persistence is described by the Store port and implemented in the
// infrastructure layer.
package tanker
