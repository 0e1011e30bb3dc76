package billing

import (
	"context"
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func resolveNow(t *testing.T, store tanker.Store, number string, date tanker.Date) tanker.Resolution {
	t.Helper()
	snap, err := tanker.LoadSnapshot(context.Background(), store)
	require.NoError(t, err)
	a, ok := snap.FindApartment(number)
	require.True(t, ok)
	return tanker.Resolve(a, date, snap)
}

func TestMutationGateway_ToggleVacancy(t *testing.T) {
	store := newStore(t, apt("101", 2))
	pub := &capturePublisher{}
	gw := NewMutationGateway(store, pub, nil, nil)
	ctx := context.Background()
	day := d("2024-05-10")

	require.NoError(t, gw.ToggleVacancy(ctx, "101", day, true))
	require.NoError(t, gw.ToggleVacancy(ctx, "101", day, true))
	vacancies, err := store.Vacancies().All(ctx)
	require.NoError(t, err)
	require.Len(t, vacancies, 1, "marking an already vacant date is a no-op")
	assert.Equal(t, day, vacancies[0].StartDate)
	assert.Equal(t, day, *vacancies[0].EndDate)
	assert.True(t, resolveNow(t, store, "101", day).Vacant)

	last, ok := pub.Last().(*tanker.VacancyToggledEvent)
	require.True(t, ok)
	assert.False(t, last.Changed)

	require.NoError(t, gw.ToggleVacancy(ctx, "101", day, false))
	vacancies, err = store.Vacancies().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, vacancies)
	assert.Equal(t, 2, resolveNow(t, store, "101", day).Occupancy)
}

func TestMutationGateway_ClearingRemovesWholeCoveringRecords(t *testing.T) {
	store := newStore(t, apt("101", 1), apt("102", 1))
	gw := NewMutationGateway(store, nil, nil, nil)
	ctx := context.Background()

	long, err := tanker.NewVacancyRecord("101", d("2024-05-01"), datePtr("2024-05-20"))
	require.NoError(t, err)
	open, err := tanker.NewVacancyRecord("101", d("2024-05-08"), nil)
	require.NoError(t, err)
	other, err := tanker.NewVacancyRecord("102", d("2024-05-01"), nil)
	require.NoError(t, err)
	later, err := tanker.NewSingleDayVacancy("101", d("2024-04-01"))
	require.NoError(t, err)
	for _, v := range []*tanker.VacancyRecord{long, open, other, later} {
		require.NoError(t, store.Vacancies().Upsert(ctx, *v))
	}
	require.NoError(t, store.Overrides().Upsert(ctx, tanker.OccupancyOverride{ApartmentNumber: "101", Date: d("2024-05-10"), Occupancy: 3}))

	require.NoError(t, gw.ToggleVacancy(ctx, "101", d("2024-05-10"), false))

	vacancies, err := store.Vacancies().All(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(vacancies))
	for _, v := range vacancies {
		ids = append(ids, v.ID.String())
	}
	assert.ElementsMatch(t, []string{other.ID.String(), later.ID.String()}, ids)

	overrides, err := store.Overrides().All(ctx)
	require.NoError(t, err)
	assert.Len(t, overrides, 1, "overrides are never touched")
	assert.Equal(t, 3, resolveNow(t, store, "101", d("2024-05-10")).Occupancy)
}

func TestMutationGateway_Validation(t *testing.T) {
	store := newStore(t, apt("101", 1))
	gw := NewMutationGateway(store, nil, nil, nil)
	ctx := context.Background()

	err := gw.SetOccupancy(ctx, "101", d("2024-05-10"), -1)
	assert.ErrorIs(t, err, shared.ErrValidation)
	err = gw.ToggleVacancy(ctx, " ", d("2024-05-10"), true)
	assert.ErrorIs(t, err, shared.ErrValidation)
	err = gw.ToggleVacancy(ctx, "101", tanker.Date{}, true)
	assert.ErrorIs(t, err, shared.ErrValidation)
	err = gw.SetTankerCount(ctx, d("2024-05-10"), -2)
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = gw.SetOccupancy(ctx, "999", d("2024-05-10"), 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	err = gw.ToggleVacancy(ctx, "999", d("2024-05-10"), true)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	snap, err := tanker.LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, snap.Vacancies)
	assert.Empty(t, snap.Overrides)
	assert.Empty(t, snap.Events)
}

func TestMutationGateway_SetOccupancy(t *testing.T) {
	store := newStore(t, apt("101", 3))
	pub := &capturePublisher{}
	gw := NewMutationGateway(store, pub, nil, nil)
	ctx := context.Background()
	day := d("2026-02-10")

	t.Run("non-default count stores an override", func(t *testing.T) {
		require.NoError(t, gw.SetOccupancy(ctx, "101", day, 5))
		overrides, err := store.Overrides().All(ctx)
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.Equal(t, 5, overrides[0].Occupancy)
		assert.Equal(t, tanker.Resolution{Occupancy: 5}, resolveNow(t, store, "101", day))
	})

	t.Run("zero makes the apartment vacant and drops the override", func(t *testing.T) {
		require.NoError(t, gw.SetOccupancy(ctx, "101", day, 0))
		snap, err := tanker.LoadSnapshot(ctx, store)
		require.NoError(t, err)
		assert.Len(t, snap.Vacancies, 1)
		assert.Empty(t, snap.Overrides)
		assert.Equal(t, tanker.Resolution{Occupancy: 0, Vacant: true}, resolveNow(t, store, "101", day))
	})

	t.Run("default count clears vacancy and leaves no override", func(t *testing.T) {
		require.NoError(t, gw.SetOccupancy(ctx, "101", day, 3))
		snap, err := tanker.LoadSnapshot(ctx, store)
		require.NoError(t, err)
		assert.Empty(t, snap.Vacancies)
		assert.Empty(t, snap.Overrides)
		assert.Equal(t, tanker.Resolution{Occupancy: 3}, resolveNow(t, store, "101", day))
	})

	assert.Equal(t, []string{
		tanker.EventTypeOccupancySet,
		tanker.EventTypeOccupancySet,
		tanker.EventTypeOccupancySet,
	}, pub.Types())
}

func TestMutationGateway_TankerCounts(t *testing.T) {
	store := newStore(t)
	pub := &capturePublisher{}
	gw := NewMutationGateway(store, pub, nil, nil)
	ctx := context.Background()
	day := d("2024-05-10")

	count := func() int {
		events, err := store.TankerEvents().All(ctx)
		require.NoError(t, err)
		return tanker.CountOn(events, day)
	}

	require.NoError(t, gw.DecrementTanker(ctx, day))
	assert.Equal(t, 0, count(), "decrement never goes below zero")
	assert.Empty(t, pub.Types(), "no-op changes publish nothing")

	require.NoError(t, gw.IncrementTanker(ctx, day))
	require.NoError(t, gw.IncrementTanker(ctx, day))
	assert.Equal(t, 2, count())

	require.NoError(t, gw.DecrementTanker(ctx, day))
	require.NoError(t, gw.DecrementTanker(ctx, day))
	events, err := store.TankerEvents().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, events, "a zero count is never stored")

	require.NoError(t, gw.SetTankerCount(ctx, day, 7))
	assert.Equal(t, 7, count())
	require.NoError(t, gw.SetTankerCount(ctx, day, 0))
	events, err = store.TankerEvents().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	last, ok := pub.Last().(*tanker.TankerCountChangedEvent)
	require.True(t, ok)
	assert.Equal(t, 7, last.OldCount)
	assert.Equal(t, 0, last.NewCount)
	assert.Len(t, pub.Types(), 6)
}

func TestMutationGateway_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	store := newStore(t, apt("101", 1))
	gw := NewMutationGateway(store, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, gw.SetOccupancy(ctx, "101", d("2024-05-10"), 3))
	require.Error(t, gw.ToggleVacancy(ctx, "999", d("2024-05-10"), true))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "mutation.set_occupancy", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "101", attrs["apartment_number"])
	assert.Equal(t, "2024-05-10", attrs["date"])
	assert.Equal(t, "3", attrs["occupancy"])

	assert.Equal(t, "mutation.toggle_vacancy", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
