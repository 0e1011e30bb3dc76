package billing

import (
	"context"
	"strings"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Mutation operation names used in logs and metrics
const (
	OpToggleVacancy   = "toggle_vacancy"
	OpSetOccupancy    = "set_occupancy"
	OpIncrementTanker = "increment_tanker"
	OpDecrementTanker = "decrement_tanker"
	OpSetTankerCount  = "set_tanker_count"
)

// MutationGateway is the only writer of apartment state and tanker events.
// Every write goes to the store, whose feeds then re-trigger the aggregator.
type MutationGateway struct {
	store     tanker.Store
	publisher shared.EventPublisher
	metrics   *telemetry.BillingMetrics
	logger    *zap.Logger
}

// NewMutationGateway creates a MutationGateway. publisher and metrics may be nil.
func NewMutationGateway(store tanker.Store, publisher shared.EventPublisher, metrics *telemetry.BillingMetrics, logger *zap.Logger) *MutationGateway {
	if publisher == nil {
		publisher = shared.NoopEventPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationGateway{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("gateway"),
	}
}

// ToggleVacancy marks apt vacant on date, or clears every vacancy covering it.
//
// Marking creates a single-day record unless one already covers the date.
// Clearing deletes each covering record whole, including multi-day ones.
// Overrides are never touched.
func (g *MutationGateway) ToggleVacancy(ctx context.Context, apt string, date tanker.Date, vacant bool) (err error) {
	ctx, done := g.trace(ctx, OpToggleVacancy,
		telemetry.WithAttribute(telemetry.SpanAttrApartment, apt),
		telemetry.WithAttribute(telemetry.SpanAttrDate, date),
		telemetry.WithAttribute(telemetry.SpanAttrVacant, vacant))
	defer func() { done(err) }()

	apt, err = checkApartmentDate(apt, date)
	if err != nil {
		return err
	}

	changed := false
	err = g.store.Transact(ctx, func(tx tanker.Tables) error {
		if _, err := findApartment(ctx, tx.Apartments(), apt); err != nil {
			return err
		}
		if !vacant {
			n, err := tx.Vacancies().Delete(ctx, coveringVacancy(apt, date))
			changed = n > 0
			return err
		}

		covered, err := isCovered(ctx, tx.Vacancies(), apt, date)
		if err != nil || covered {
			return err
		}
		changed = true
		return upsertSingleDayVacancy(ctx, tx.Vacancies(), apt, date)
	})
	if err != nil {
		g.logger.Warn("Toggle vacancy failed",
			zap.String("apartment", apt), zap.Stringer("date", date), zap.Bool("vacant", vacant), zap.Error(err))
		return err
	}

	g.logger.Debug("Vacancy toggled",
		zap.String("apartment", apt), zap.Stringer("date", date), zap.Bool("vacant", vacant), zap.Bool("changed", changed))
	g.publish(ctx, tanker.NewVacancyToggledEvent(apt, date, vacant, changed))
	return nil
}

// SetOccupancy makes apt's effective occupancy on date equal to count.
//
// Zero ensures a covering vacancy and removes the override. A positive count
// removes covering vacancies, then stores an override unless count equals
// the apartment's default occupancy.
func (g *MutationGateway) SetOccupancy(ctx context.Context, apt string, date tanker.Date, count int) (err error) {
	ctx, done := g.trace(ctx, OpSetOccupancy,
		telemetry.WithAttribute(telemetry.SpanAttrApartment, apt),
		telemetry.WithAttribute(telemetry.SpanAttrDate, date),
		telemetry.WithAttribute(telemetry.SpanAttrOccupancy, count))
	defer func() { done(err) }()

	if count < 0 {
		return shared.NewValidationError("occupancy cannot be negative, got %d", count)
	}
	apt, err = checkApartmentDate(apt, date)
	if err != nil {
		return err
	}

	err = g.store.Transact(ctx, func(tx tanker.Tables) error {
		apartment, err := findApartment(ctx, tx.Apartments(), apt)
		if err != nil {
			return err
		}
		key := tanker.OverrideKey{ApartmentNumber: apt, Date: date}
		deleteOverride := func() error {
			_, err := tx.Overrides().Delete(ctx, func(o tanker.OccupancyOverride) bool { return o.Key() == key })
			return err
		}

		if count == 0 {
			covered, err := isCovered(ctx, tx.Vacancies(), apt, date)
			if err != nil {
				return err
			}
			if !covered {
				if err := upsertSingleDayVacancy(ctx, tx.Vacancies(), apt, date); err != nil {
					return err
				}
			}
			return deleteOverride()
		}

		if _, err := tx.Vacancies().Delete(ctx, coveringVacancy(apt, date)); err != nil {
			return err
		}
		if count == apartment.DefaultOccupancy {
			return deleteOverride()
		}
		override, err := tanker.NewOccupancyOverride(apt, date, count)
		if err != nil {
			return err
		}
		return tx.Overrides().Upsert(ctx, *override)
	})
	if err != nil {
		g.logger.Warn("Set occupancy failed",
			zap.String("apartment", apt), zap.Stringer("date", date), zap.Int("count", count), zap.Error(err))
		return err
	}

	g.publish(ctx, tanker.NewOccupancySetEvent(apt, date, count))
	return nil
}

// IncrementTanker adds one tanker on date.
//
// The read and the write are separate store calls, not one transaction: two
// concurrent calls for the same date can both read n and both write n+1,
// losing one update (ConcurrentUpdateLost). The loss is not detected.
func (g *MutationGateway) IncrementTanker(ctx context.Context, date tanker.Date) (err error) {
	ctx, done := g.trace(ctx, OpIncrementTanker, telemetry.WithAttribute(telemetry.SpanAttrDate, date))
	defer func() { done(err) }()
	return g.adjustTanker(ctx, date, 1)
}

// DecrementTanker removes one tanker on date, never going below zero.
// It has the same lost-update window as IncrementTanker.
func (g *MutationGateway) DecrementTanker(ctx context.Context, date tanker.Date) (err error) {
	ctx, done := g.trace(ctx, OpDecrementTanker, telemetry.WithAttribute(telemetry.SpanAttrDate, date))
	defer func() { done(err) }()
	return g.adjustTanker(ctx, date, -1)
}

func (g *MutationGateway) adjustTanker(ctx context.Context, date tanker.Date, delta int) error {
	if date.IsZero() {
		return shared.NewValidationError("date is required")
	}
	events, err := g.store.TankerEvents().All(ctx)
	if err != nil {
		return err
	}
	current := tanker.CountOn(events, date)
	next := max(current+delta, 0)
	if next == current {
		return nil
	}
	if err := writeTankerCount(ctx, g.store.TankerEvents(), date, next); err != nil {
		return err
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "tanker_count_written",
		"from", current, telemetry.SpanAttrTankerCount, next)
	g.publish(ctx, tanker.NewTankerCountChangedEvent(date, current, next))
	return nil
}

// SetTankerCount sets the tankers delivered on date; zero removes the event
func (g *MutationGateway) SetTankerCount(ctx context.Context, date tanker.Date, count int) (err error) {
	ctx, done := g.trace(ctx, OpSetTankerCount,
		telemetry.WithAttribute(telemetry.SpanAttrDate, date),
		telemetry.WithAttribute(telemetry.SpanAttrTankerCount, count))
	defer func() { done(err) }()

	if count < 0 {
		return shared.NewValidationError("tanker count cannot be negative, got %d", count)
	}
	if date.IsZero() {
		return shared.NewValidationError("date is required")
	}

	current := 0
	err = g.store.Transact(ctx, func(tx tanker.Tables) error {
		events, err := tx.TankerEvents().All(ctx)
		if err != nil {
			return err
		}
		current = tanker.CountOn(events, date)
		if current == count {
			return nil
		}
		return writeTankerCount(ctx, tx.TankerEvents(), date, count)
	})
	if err != nil {
		return err
	}
	if current != count {
		g.publish(ctx, tanker.NewTankerCountChangedEvent(date, current, count))
	}
	return nil
}

// trace opens the span for op. The returned func ends it and records the
// outcome on both the span and the mutation metrics.
func (g *MutationGateway) trace(ctx context.Context, op string, opts ...telemetry.SpanOption) (context.Context, func(error)) {
	ctx, span := telemetry.StartServiceSpan(ctx, "mutation", op, opts...)
	return ctx, func(err error) {
		telemetry.RecordError(span, err)
		span.End()
		g.metrics.RecordMutation(ctx, op, err)
	}
}

func (g *MutationGateway) publish(ctx context.Context, event shared.DomainEvent) {
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Warn("Failed to publish domain event",
			zap.String("event_type", event.EventType()), zap.Error(err))
	}
}

func checkApartmentDate(apt string, date tanker.Date) (string, error) {
	apt = strings.TrimSpace(apt)
	if apt == "" {
		return "", shared.NewValidationError("apartment number is required")
	}
	if date.IsZero() {
		return "", shared.NewValidationError("date is required")
	}
	return apt, nil
}

func findApartment(ctx context.Context, apartments tanker.Table[tanker.Apartment], number string) (tanker.Apartment, error) {
	all, err := apartments.All(ctx)
	if err != nil {
		return tanker.Apartment{}, err
	}
	for _, a := range all {
		if a.Number == number {
			return a, nil
		}
	}
	return tanker.Apartment{}, shared.NewDomainError(shared.CodeNotFound, "apartment "+number+" not found")
}

func coveringVacancy(apt string, date tanker.Date) func(tanker.VacancyRecord) bool {
	return func(v tanker.VacancyRecord) bool { return v.CoversApartmentOn(apt, date) }
}

func isCovered(ctx context.Context, vacancies tanker.Table[tanker.VacancyRecord], apt string, date tanker.Date) (bool, error) {
	all, err := vacancies.All(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range all {
		if v.CoversApartmentOn(apt, date) {
			return true, nil
		}
	}
	return false, nil
}

func upsertSingleDayVacancy(ctx context.Context, vacancies tanker.Table[tanker.VacancyRecord], apt string, date tanker.Date) error {
	record, err := tanker.NewSingleDayVacancy(apt, date)
	if err != nil {
		return err
	}
	return vacancies.Upsert(ctx, *record)
}

func writeTankerCount(ctx context.Context, events tanker.Table[tanker.TankerEvent], date tanker.Date, count int) error {
	if count == 0 {
		_, err := events.Delete(ctx, func(e tanker.TankerEvent) bool { return e.Date == date })
		return err
	}
	event, err := tanker.NewTankerEvent(date, count)
	if err != nil {
		return err
	}
	return events.Upsert(ctx, *event)
}
